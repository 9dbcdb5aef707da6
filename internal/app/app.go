package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/semmidev/wpfleet/internal/adapter/archiver"
	"github.com/semmidev/wpfleet/internal/adapter/compressor"
	"github.com/semmidev/wpfleet/internal/adapter/database"
	"github.com/semmidev/wpfleet/internal/adapter/notify"
	"github.com/semmidev/wpfleet/internal/adapter/site"
	"github.com/semmidev/wpfleet/internal/adapter/storage"
	"github.com/semmidev/wpfleet/internal/adapter/transport"
	"github.com/semmidev/wpfleet/internal/config"
	"github.com/semmidev/wpfleet/internal/domain"
	"github.com/semmidev/wpfleet/internal/infrastructure/logger"
	"github.com/semmidev/wpfleet/internal/infrastructure/metrics"
	"github.com/semmidev/wpfleet/internal/infrastructure/scheduler"
	"github.com/semmidev/wpfleet/internal/usecase"
)

type Options struct {
	// Quiet keeps the console free for a machine-readable report.
	Quiet bool
}

type App struct {
	config    *config.Config
	logger    *logger.Logger
	registry  *site.Registry
	mysql     *database.MySQL
	remote    *usecase.RemoteSync
	snapshot  *usecase.SnapshotWriter
	backup    *usecase.Backup
	restore   *usecase.Restore
	notifier  domain.Notifier
	metrics   *metrics.Recorder
	scheduler *scheduler.Scheduler
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log, err := logger.New(logger.Options{
		Level: cfg.App.LogLevel,
		File:  cfg.App.LogFile,
		Quiet: opts.Quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Remote.Type, err)
	}
	log.Infof("✓ Remote storage: %s", store.Type())

	var notifier domain.Notifier
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(&cfg.Notify.Telegram)
		if err != nil {
			log.Errorf("Failed to initialize Telegram: %v", err)
		} else {
			notifier = tg
			log.Infof("✓ Telegram notifications enabled")
		}
	}

	var recorder *metrics.Recorder
	if cfg.App.MetricsFile != "" {
		recorder = metrics.NewRecorder()
	}

	comp := compressor.NewGzipLevel(cfg.Backup.CompressionLevel)
	arch := archiver.NewTar(comp)
	mysql := database.NewMySQL(&cfg.Database)
	registry := site.NewRegistry(cfg.Sites.Marker, cfg.Sites.ScanDepth, log.Component("registry"))

	useLog := log.Component("backup")
	remote := usecase.NewRemoteSync(store, useLog)
	snapshot := usecase.NewSnapshotWriter(mysql, arch, comp, useLog)
	backup := usecase.NewBackup(
		snapshot,
		remote,
		usecase.NewRetention(remote, cfg.RetentionPolicy(), log.Component("retention")),
		useLog,
		backupConfig(cfg),
	)

	restore := usecase.NewRestore(mysql, arch, comp, registry, log.Component("restore"), usecase.RestoreConfig{
		ScratchDir:    cfg.Backup.ScratchDir,
		Marker:        cfg.Sites.Marker,
		FallbackOwner: cfg.Restore.FallbackOwner,
		FallbackGroup: cfg.Restore.FallbackGroup,
		MaxPairSkew:   cfg.Restore.MaxPairSkew,
	})

	return &App{
		config:    cfg,
		logger:    log,
		registry:  registry,
		mysql:     mysql,
		remote:    remote,
		snapshot:  snapshot,
		backup:    backup,
		restore:   restore,
		notifier:  notifier,
		metrics:   recorder,
		scheduler: scheduler.New(log.Component("scheduler")),
	}, nil
}

func backupConfig(cfg *config.Config) usecase.BackupConfig {
	return usecase.BackupConfig{
		ScratchDir:  cfg.Backup.ScratchDir,
		Concurrency: cfg.Backup.Concurrency,
		SiteTimeout: cfg.Backup.SiteTimeout,
	}
}

func newStorage(ctx context.Context, cfg *config.Config) (domain.Storage, error) {
	switch cfg.Remote.Type {
	case "local":
		return storage.NewLocal(cfg.Remote.Root)
	case "s3":
		return storage.NewS3(ctx, &cfg.Remote)
	case "minio":
		return storage.NewMinio(ctx, &cfg.Remote)
	case "rclone":
		return storage.NewRclone(&cfg.Remote), nil
	case "gdrive":
		return storage.NewGDrive(ctx, &cfg.Remote)
	default:
		return nil, fmt.Errorf("unsupported remote type %q", cfg.Remote.Type)
	}
}

func (a *App) Logger() *logger.Logger {
	return a.logger
}

func (a *App) Config() *config.Config {
	return a.config
}

// Sites discovers every installation under the configured root.
func (a *App) Sites() ([]domain.Site, error) {
	sites, err := a.registry.Discover(a.config.Sites.Root)
	if err != nil {
		return nil, err
	}
	a.logger.Infof("Found %d site(s) under %s", len(sites), a.config.Sites.Root)
	return sites, nil
}

// SelectSites discovers and narrows to domains. Unknown domains are an
// error so a typo does not silently back up nothing.
func (a *App) SelectSites(domains []string) ([]domain.Site, error) {
	sites, err := a.Sites()
	if err != nil {
		return nil, err
	}

	selected, unknown := site.Select(sites, domains)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown site(s): %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}

func (a *App) Backup(ctx context.Context, class domain.BackupClass, domains []string) (*usecase.RunReport, error) {
	sites, err := a.SelectSites(domains)
	if err != nil {
		return nil, err
	}

	report := a.backup.Execute(ctx, sites, class)
	a.afterRun(report)
	return report, nil
}

// afterRun publishes a finished run to the metrics textfile and the
// notifier. Neither can fail the run.
func (a *App) afterRun(report *usecase.RunReport) {
	if a.metrics != nil {
		class := string(report.Class)
		a.metrics.ObserveRun(class, report.StatusCounts(), report.StartedAt, report.FinishedAt, report.Failed() > 0)
		for tier, n := range prunedByClass(report) {
			a.metrics.ObservePruned(tier, n)
		}
		if err := a.metrics.WriteTextfile(a.config.App.MetricsFile); err != nil {
			a.logger.Errorf("Failed to write metrics: %v", err)
		}
	}

	if a.notifier != nil {
		// The run context may already be cancelled; the summary still goes out.
		if err := a.notifier.Notify(context.Background(), report.Message(a.config.App.Name)); err != nil {
			a.logger.Errorf("Failed to send notification: %v", err)
		}
	}
}

func prunedByClass(report *usecase.RunReport) map[string]int {
	counts := make(map[string]int)
	for _, res := range report.Results {
		for _, name := range res.Pruned {
			if art, err := domain.ParseArtifactName(name); err == nil {
				counts[string(art.Class)]++
			}
		}
	}
	return counts
}

// Restore rebuilds one site from the configured remote, or from a local
// directory laid out as <dir>/<domain>/<artifact> when fromLocal is set.
func (a *App) Restore(ctx context.Context, opts usecase.RestoreOptions, fromLocal string) (*usecase.RestoreResult, error) {
	source := a.remote
	if fromLocal != "" {
		local, err := storage.NewLocal(fromLocal)
		if err != nil {
			return nil, err
		}
		source = usecase.NewRemoteSync(local, a.logger.Component("restore"))
	}

	return a.restore.Execute(ctx, source, opts)
}

// Migrate snapshots sites into backup.local_path and pushes that directory
// to the migration host.
func (a *App) Migrate(ctx context.Context, domains []string) (*usecase.MigrateReport, error) {
	if err := a.config.MigrationReady(); err != nil {
		return nil, err
	}

	sites, err := a.SelectSites(domains)
	if err != nil {
		return nil, err
	}

	local, err := storage.NewLocal(a.config.Backup.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}

	useLog := a.logger.Component("migrate")
	backup := usecase.NewBackup(a.snapshot, usecase.NewRemoteSync(local, useLog), nil, useLog, backupConfig(a.config))
	target := usecase.MigrateTarget{
		Host:       a.config.Migration.Host,
		Port:       a.config.Migration.Port,
		RemotePath: a.config.Migration.RemotePath,
	}

	uc := usecase.NewMigrate(backup, transport.NewSFTP(&a.config.Migration, useLog), a.config.Backup.LocalPath, target, useLog)
	report, err := uc.Execute(ctx, sites)
	if report != nil {
		a.afterRun(report.Run)
	}
	return report, err
}

// Artifacts lists the parsed artifacts stored for one site, oldest first.
func (a *App) Artifacts(ctx context.Context, siteDomain string) ([]domain.Artifact, error) {
	return a.remote.Artifacts(ctx, siteDomain)
}

// Run schedules the daily backup and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	schedule := a.config.Backup.Schedule
	a.logger.Infof("Scheduling daily backup: %s", schedule)

	if err := a.scheduler.AddJob("daily-backup", schedule, func(ctx context.Context) error {
		report, err := a.Backup(ctx, domain.ClassDaily, nil)
		if err != nil {
			return err
		}
		if n := report.Failed(); n > 0 {
			return fmt.Errorf("%d site(s) failed", n)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started, remote %s", a.remote.Type())

	<-ctx.Done()
	return nil
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down...")
	a.scheduler.Stop()
	if err := a.mysql.Close(); err != nil {
		a.logger.Warnf("Failed to close database connection: %v", err)
	}
	a.logger.Close()
}
