package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/wpfleet/internal/adapter/fsutil"
	"github.com/semmidev/wpfleet/internal/domain"
)

// CredentialLocator finds the site configuration inside an extracted tree.
type CredentialLocator interface {
	Locate(root string) (siteRoot string, creds domain.Credentials, err error)
}

type RestoreConfig struct {
	ScratchDir    string
	Marker        string
	FallbackOwner string
	FallbackGroup string
	// MaxPairSkew bounds how far apart the chosen database and file
	// artifacts may be. Zero disables the check.
	MaxPairSkew time.Duration
}

type RestoreOptions struct {
	Domain     string
	TargetRoot string
	// Class and Stamp narrow the candidate artifacts when set.
	Class domain.BackupClass
	Stamp string
	// Confirm allows the destructive steps. DryRun stops after the
	// credentials are read.
	Confirm bool
	DryRun  bool
}

type RestoreResult struct {
	Domain      string             `json:"domain"`
	Set         domain.BackupSet   `json:"-"`
	Database    string             `json:"database_artifact"`
	Files       string             `json:"files_artifact"`
	Credentials domain.Credentials `json:"-"`
	DBName      string             `json:"database"`
	DBUser      string             `json:"database_user"`
	Owner       fsutil.Identity    `json:"owner"`
	Mirror      fsutil.MirrorStats `json:"mirror"`
	DryRun      bool               `json:"dry_run"`
	FailedStep  string             `json:"failed_step,omitempty"`
}

type Restore struct {
	provisioner domain.DatabaseProvisioner
	archiver    domain.Archiver
	compressor  domain.Compressor
	locator     CredentialLocator
	logger      Logger
	config      RestoreConfig
}

func NewRestore(
	provisioner domain.DatabaseProvisioner,
	archiver domain.Archiver,
	compressor domain.Compressor,
	locator CredentialLocator,
	logger Logger,
	cfg RestoreConfig,
) *Restore {
	return &Restore{
		provisioner: provisioner,
		archiver:    archiver,
		compressor:  compressor,
		locator:     locator,
		logger:      logger,
		config:      cfg,
	}
}

// Execute rebuilds a site from source. A failure after provisioning starts
// leaves the target partially restored; the result names the failed step.
func (uc *Restore) Execute(ctx context.Context, source *RemoteSync, opts RestoreOptions) (*RestoreResult, error) {
	result := &RestoreResult{Domain: opts.Domain, DryRun: opts.DryRun}

	if !opts.Confirm && !opts.DryRun {
		return result, domain.ErrConsentRequired
	}
	if opts.TargetRoot == "" && !opts.DryRun {
		return result, fmt.Errorf("target root is required")
	}

	fail := func(step string, err error) (*RestoreResult, error) {
		result.FailedStep = step
		uc.logger.Errorf("[%s] Restore failed at %s: %v", opts.Domain, step, err)
		return result, &domain.RestoreStepError{Step: step, Err: err}
	}

	set, err := uc.resolve(ctx, source, opts)
	if err != nil {
		return fail(domain.StepResolve, err)
	}
	result.Set = set
	result.Database = set.Database.Name()
	result.Files = set.Files.Name()
	uc.logger.Infof("[%s] Restoring %s and %s", opts.Domain, result.Database, result.Files)

	scratch, err := os.MkdirTemp(uc.config.ScratchDir, "wpfleet-restore-*")
	if err != nil {
		return fail(domain.StepFetch, err)
	}
	defer os.RemoveAll(scratch)

	dbPath, err := source.Download(ctx, opts.Domain, result.Database, scratch)
	if err != nil {
		return fail(domain.StepFetch, err)
	}
	filesPath, err := source.Download(ctx, opts.Domain, result.Files, scratch)
	if err != nil {
		return fail(domain.StepFetch, err)
	}

	extractDir := filepath.Join(scratch, "extract")
	if err := uc.extract(ctx, filesPath, extractDir); err != nil {
		return fail(domain.StepExtract, err)
	}

	siteRoot, creds, err := uc.locator.Locate(extractDir)
	if err != nil {
		return fail(domain.StepCredentials, err)
	}
	result.Credentials = creds
	result.DBName = creds.Name
	result.DBUser = creds.User

	if opts.DryRun {
		uc.logger.Infof("[%s] Dry run: would restore database %s and files into %s", opts.Domain, creds.Name, opts.TargetRoot)
		return result, nil
	}

	if err := uc.provision(ctx, creds, dbPath); err != nil {
		return fail(domain.StepDatabase, err)
	}
	uc.logger.Infof("[%s] Database %s restored", opts.Domain, creds.Name)

	// The owner has to be read before the mirror creates the directory.
	owner, existed, err := fsutil.OwnerOf(opts.TargetRoot)
	if err != nil {
		return fail(domain.StepFiles, err)
	}

	stats, err := fsutil.Mirror(ctx, siteRoot, opts.TargetRoot)
	if err != nil {
		return fail(domain.StepFiles, err)
	}
	result.Mirror = stats
	uc.logger.Infof("[%s] Files restored into %s (%d copied, %d removed)", opts.Domain, opts.TargetRoot, stats.Copied, stats.Removed)

	if !existed {
		owner, err = fsutil.LookupIdentity(uc.config.FallbackOwner, uc.config.FallbackGroup)
		if err != nil {
			return fail(domain.StepOwnership, err)
		}
	}
	result.Owner = owner

	if err := fsutil.Reconcile(ctx, opts.TargetRoot, owner, uc.config.Marker); err != nil {
		return fail(domain.StepOwnership, err)
	}

	uc.logger.Infof("[%s] Restore complete, owner %d:%d", opts.Domain, owner.UID, owner.GID)
	return result, nil
}

// resolve picks the newest database and file artifacts independently and
// rejects the pair when they are too far apart.
func (uc *Restore) resolve(ctx context.Context, source *RemoteSync, opts RestoreOptions) (domain.BackupSet, error) {
	artifacts, err := source.Artifacts(ctx, opts.Domain)
	if err != nil {
		return domain.BackupSet{}, err
	}

	var set domain.BackupSet
	var haveDB, haveFiles bool
	for _, a := range artifacts {
		if opts.Class != "" && a.Class != opts.Class {
			continue
		}
		if opts.Stamp != "" && a.Stamp != opts.Stamp {
			continue
		}
		// artifacts are oldest first, so the last match wins
		switch a.Kind {
		case domain.KindDatabase:
			set.Database, haveDB = a, true
		case domain.KindFiles:
			set.Files, haveFiles = a, true
		}
	}

	if !haveDB || !haveFiles {
		return set, fmt.Errorf("no complete artifact set for %s on %s (database: %t, files: %t)",
			opts.Domain, source.Type(), haveDB, haveFiles)
	}

	skew := set.Database.CreatedAt.Sub(set.Files.CreatedAt).Abs()
	if uc.config.MaxPairSkew > 0 && skew > uc.config.MaxPairSkew {
		return set, fmt.Errorf("%w: %s and %s are %s apart", domain.ErrInconsistentArtifactSet,
			set.Database.Name(), set.Files.Name(), skew)
	}

	return set, nil
}

func (uc *Restore) extract(ctx context.Context, archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	return uc.archiver.Extract(ctx, f, dir)
}

func (uc *Restore) provision(ctx context.Context, creds domain.Credentials, dumpPath string) error {
	if err := uc.provisioner.EnsureDatabase(ctx, creds.Name); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	if creds.User != "" {
		if err := uc.provisioner.EnsureUser(ctx, creds); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
	}

	f, err := os.Open(dumpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := uc.compressor.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	if err := uc.provisioner.Import(ctx, creds.Name, zr); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return nil
}
