package usecase

import (
	"context"
	"fmt"

	"github.com/semmidev/wpfleet/internal/domain"
)

type MigrateTarget struct {
	Host       string
	Port       int
	RemotePath string
}

type MigrateReport struct {
	Run      *RunReport             `json:"run"`
	Transfer *domain.TransferResult `json:"transfer,omitempty"`
}

// Migrate snapshots sites with the migrate class into the local backup
// directory and pushes that directory to another host.
type Migrate struct {
	backup    *Backup
	transport domain.Transport
	localRoot string
	target    MigrateTarget
	logger    Logger
}

// NewMigrate expects backup to store into localRoot, typically through a
// RemoteSync over local storage.
func NewMigrate(backup *Backup, transport domain.Transport, localRoot string, target MigrateTarget, logger Logger) *Migrate {
	return &Migrate{
		backup:    backup,
		transport: transport,
		localRoot: localRoot,
		target:    target,
		logger:    logger,
	}
}

// Execute returns an error when nothing could be pushed. The target is
// contacted before any snapshot is taken, so an unreachable host costs no
// disk. Per-site snapshot failures are in the run report.
func (uc *Migrate) Execute(ctx context.Context, sites []domain.Site) (*MigrateReport, error) {
	if err := uc.transport.Check(ctx, uc.target.Host, uc.target.Port); err != nil {
		return nil, fmt.Errorf("migration target: %w", err)
	}

	report := &MigrateReport{Run: uc.backup.Execute(ctx, sites, domain.ClassMigrate)}

	if report.Run.Count(StatusOK) == 0 {
		return report, fmt.Errorf("no site was snapshotted, nothing to migrate")
	}

	uc.logger.Infof("Pushing %s to %s:%d%s", uc.localRoot, uc.target.Host, uc.target.Port, uc.target.RemotePath)
	result, err := uc.transport.Push(ctx, uc.localRoot, uc.target.Host, uc.target.Port, uc.target.RemotePath)
	report.Transfer = result
	if err != nil {
		return report, fmt.Errorf("migration push: %w", err)
	}

	uc.logger.Infof("Migration complete: %d file(s), %.2f MB", result.Files, float64(result.Bytes)/(1024*1024))
	return report, nil
}
