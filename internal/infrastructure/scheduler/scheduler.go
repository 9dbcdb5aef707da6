package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Scheduler runs jobs on six-field cron specs. A job that is still running
// when its next tick fires is skipped rather than started twice.
type Scheduler struct {
	cron   *cron.Cron
	logger Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) AddJob(name, spec string, job func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Infof("Running scheduled job %s", name)
		if err := job(s.ctx); err != nil {
			s.logger.Errorf("Scheduled job %s failed: %v", name, err)
		}
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the context handed to running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	s.cancel()
	<-ctx.Done()
}
