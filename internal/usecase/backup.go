package usecase

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/semmidev/wpfleet/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

type BackupConfig struct {
	ScratchDir  string
	Concurrency int
	SiteTimeout time.Duration
}

// Backup runs snapshot, upload and retention for a set of sites on a
// bounded worker pool. Sites never share a remote prefix, so workers need
// no coordination.
type Backup struct {
	snapshot  *SnapshotWriter
	sync      *RemoteSync
	retention *Retention
	logger    Logger
	config    BackupConfig
	now       func() time.Time
}

// NewBackup wires a run. retention may be nil, in which case no class is
// pruned or promoted.
func NewBackup(
	snapshot *SnapshotWriter,
	sync *RemoteSync,
	retention *Retention,
	logger Logger,
	cfg BackupConfig,
) *Backup {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Backup{
		snapshot:  snapshot,
		sync:      sync,
		retention: retention,
		logger:    logger,
		config:    cfg,
		now:       time.Now,
	}
}

// Execute backs up every site and returns one result per site in input
// order. A failing site never stops the others; cancelling ctx stops sites
// that have not started yet.
func (uc *Backup) Execute(ctx context.Context, sites []domain.Site, class domain.BackupClass) *RunReport {
	report := &RunReport{
		RunID:     uuid.NewString(),
		Class:     class,
		StartedAt: uc.now(),
		Results:   make([]SiteResult, len(sites)),
	}
	uc.logger.Infof("Starting %s backup run %s for %d site(s) to %s", class, report.RunID, len(sites), uc.sync.Type())

	at := report.StartedAt

	g := new(errgroup.Group)
	g.SetLimit(uc.config.Concurrency)

	for i, site := range sites {
		g.Go(func() error {
			report.Results[i] = uc.backupSite(ctx, site, class, at)
			return nil
		})
	}
	g.Wait()

	report.FinishedAt = uc.now()
	uc.logger.Infof("Backup run %s finished: %s", report.RunID, report.Summary())
	return report
}

func (uc *Backup) backupSite(ctx context.Context, site domain.Site, class domain.BackupClass, at time.Time) SiteResult {
	start := time.Now()
	res := SiteResult{Domain: site.Domain}
	defer func() { res.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		res.Status = StatusCancelled
		res.Error = err.Error()
		return res
	}

	if !site.Valid() {
		res.Status = StatusSkipped
		res.Error = "no database name"
		uc.logger.Warnf("[%s] Skipped: no database name in %s", site.Domain, site.ConfigPath)
		return res
	}

	if uc.config.SiteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.config.SiteTimeout)
		defer cancel()
	}

	scratch, err := os.MkdirTemp(uc.config.ScratchDir, "wpfleet-"+site.Domain+"-*")
	if err != nil {
		res.Status = StatusDumpFailed
		res.Error = err.Error()
		return res
	}
	defer os.RemoveAll(scratch)

	uc.logger.Infof("[%s] Starting %s backup...", site.Domain, class)
	set, err := uc.snapshot.Write(ctx, site, class, at, scratch)
	if err != nil {
		res.Status = snapshotStatus(err)
		res.Error = err.Error()
		uc.logger.Errorf("[%s] Snapshot failed: %v", site.Domain, err)
		return res
	}

	uploaded, err := uc.sync.UploadDir(ctx, scratch, site.Domain)
	if err != nil {
		res.Status = StatusUploadFailed
		res.Error = err.Error()
		uc.logger.Errorf("[%s] Upload failed: %v", site.Domain, err)
		uc.discard(site.Domain, uploaded)
		return res
	}
	res.Artifacts = uploaded
	uc.logger.Infof("[%s] Uploaded %d artifact(s) to %s", site.Domain, len(uploaded), uc.sync.Type())

	if class == domain.ClassDaily && uc.retention != nil {
		rr := uc.retention.Apply(ctx, set)
		res.Promoted = rr.Promoted
		res.Pruned = rr.DeletedNames()
	}

	res.Status = StatusOK
	uc.logger.Infof("[%s] Backup completed in %s", site.Domain, time.Since(start).Round(time.Second))
	return res
}

// discard removes the half of a set that made it to the remote before the
// upload failed. It must not depend on the site context, which may be the
// reason for the failure.
func (uc *Backup) discard(site string, names []string) {
	if len(names) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, name := range names {
		if err := uc.sync.Delete(ctx, site, name); err != nil {
			uc.logger.Errorf("[%s] Failed to remove partial upload: %v", site, err)
		}
	}
}

func snapshotStatus(err error) SiteStatus {
	switch {
	case errors.Is(err, context.Canceled):
		return StatusCancelled
	case errors.Is(err, domain.ErrDumpFailed):
		return StatusDumpFailed
	case errors.Is(err, domain.ErrArchiveFailed):
		return StatusArchiveFailed
	}
	return StatusDumpFailed
}
