package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/semmidev/wpfleet/internal/domain"
)

// RetentionReport describes one retention pass for one site.
type RetentionReport struct {
	Promoted []string
	Deleted  map[domain.BackupClass][]string
	Errors   []error
}

func (r *RetentionReport) DeletedNames() []string {
	var names []string
	for _, class := range []domain.BackupClass{domain.ClassDaily, domain.ClassWeekly, domain.ClassMonthly} {
		names = append(names, r.Deleted[class]...)
	}
	return names
}

func (r *RetentionReport) fail(err error) {
	r.Errors = append(r.Errors, err)
}

// Retention prunes and promotes the automatic tiers of one site. It runs
// after a daily backup set is durably stored and keys promotion off that
// set, never off older history.
type Retention struct {
	sync   *RemoteSync
	policy domain.RetentionPolicy
	logger Logger
}

func NewRetention(sync *RemoteSync, policy domain.RetentionPolicy, logger Logger) *Retention {
	return &Retention{sync: sync, policy: policy, logger: logger}
}

// Apply runs one pass for the site of fresh. Failures are collected in the
// report and never stop the remaining tiers.
func (uc *Retention) Apply(ctx context.Context, fresh domain.BackupSet) *RetentionReport {
	site := fresh.Database.Domain
	at := fresh.Database.CreatedAt
	report := &RetentionReport{Deleted: make(map[domain.BackupClass][]string)}

	uc.prune(ctx, site, domain.ClassDaily, report)

	if uc.policy.IsWeekBoundary(at) {
		uc.promote(ctx, fresh, domain.ClassWeekly, report)
	}
	uc.prune(ctx, site, domain.ClassWeekly, report)

	if uc.policy.IsMonthBoundary(at) {
		uc.promote(ctx, fresh, domain.ClassMonthly, report)
	}
	uc.prune(ctx, site, domain.ClassMonthly, report)

	return report
}

// promote copies both halves of fresh into class. If the second copy
// fails, the first is removed again so the tier never holds half a set.
func (uc *Retention) promote(ctx context.Context, fresh domain.BackupSet, class domain.BackupClass, report *RetentionReport) {
	site := fresh.Database.Domain

	var done []string
	for _, src := range fresh.Artifacts() {
		dst := src.Promote(class).Name()
		if err := uc.sync.Copy(ctx, site, src.Name(), dst); err != nil {
			err = fmt.Errorf("%w: %s -> %s: %w", domain.ErrPromotionFailed, src.Name(), dst, err)
			uc.logger.Errorf("[%s] %v", site, err)
			report.fail(err)

			for _, name := range done {
				if delErr := uc.sync.Delete(ctx, site, name); delErr != nil {
					uc.logger.Errorf("[%s] Failed to roll back %s: %v", site, name, delErr)
					report.fail(delErr)
				}
			}
			return
		}
		done = append(done, dst)
	}

	uc.logger.Infof("[%s] Promoted %s backup %s", site, class, fresh.Database.Stamp)
	report.Promoted = append(report.Promoted, done...)
}

// prune keeps the newest keep backup events of class. An event is every
// artifact sharing one timestamp token, so both kinds go together.
func (uc *Retention) prune(ctx context.Context, site string, class domain.BackupClass, report *RetentionReport) {
	artifacts, err := uc.sync.Artifacts(ctx, site)
	if err != nil {
		uc.logger.Errorf("[%s] Skipping %s retention: %v", site, class, err)
		report.fail(err)
		return
	}

	for _, a := range Expired(artifacts, class, uc.policy.Keep(class)) {
		if err := uc.sync.Delete(ctx, site, a.Name()); err != nil {
			report.fail(err)
			if ctx.Err() != nil {
				return
			}
			uc.logger.Errorf("[%s] %v", site, err)
			continue
		}
		report.Deleted[class] = append(report.Deleted[class], a.Name())
	}

	if n := len(report.Deleted[class]); n > 0 {
		uc.logger.Infof("[%s] Pruned %d %s artifact(s)", site, n, class)
	}
}

// Expired returns the artifacts of class that fall outside the newest keep
// timestamps. Artifacts of other classes are never returned.
func Expired(artifacts []domain.Artifact, class domain.BackupClass, keep int) []domain.Artifact {
	events := make(map[string][]domain.Artifact)
	for _, a := range artifacts {
		if a.Class == class {
			events[a.Stamp] = append(events[a.Stamp], a)
		}
	}

	stamps := make([]string, 0, len(events))
	for stamp := range events {
		stamps = append(stamps, stamp)
	}
	// Stamps are fixed width within a class, so this is newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(stamps)))

	var expired []domain.Artifact
	for i, stamp := range stamps {
		if i >= keep {
			expired = append(expired, events[stamp]...)
		}
	}
	domain.SortArtifacts(expired)
	return expired
}
