// Package scheduler runs the engagement sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/abhisek/companion/internal/engine"
	"github.com/abhisek/companion/internal/logger"
)

// Config sets when the sweep runs.
type Config struct {
	// Cron is a five-field expression, evaluated in UTC.
	Cron string `yaml:"cron"`
	// Timeout bounds one sweep.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig runs the sweep daily at 06:00 UTC.
func DefaultConfig() Config {
	return Config{Cron: "0 6 * * *", Timeout: time.Hour}
}

// Sweeper is the work the scheduler triggers.
type Sweeper interface {
	Sweep(ctx context.Context) (engine.SweepReport, error)
}

// Scheduler owns the cron scheduler and the sweep job. A run that comes due
// while a sweep is still going is skipped, not queued.
type Scheduler struct {
	cron    gocron.Scheduler
	job     gocron.Job
	sweeper Sweeper
	cfg     Config
	log     *logger.Logger
}

// New registers the sweep job. The scheduler does not run until Start.
func New(cfg Config, sweeper Sweeper, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{cron: cron, sweeper: sweeper, cfg: cfg, log: log}
	s.job, err = cron.NewJob(
		gocron.CronJob(cfg.Cron, false),
		gocron.NewTask(s.run),
		gocron.WithName("engagement-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = cron.Shutdown()
		return nil, fmt.Errorf("schedule sweep %q: %w", cfg.Cron, err)
	}
	return s, nil
}

// Start begins running jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	if next, err := s.job.NextRun(); err == nil {
		s.log.Info("sweep scheduled", "cron", s.cfg.Cron, "next_run", next)
	}
}

// RunNow triggers an immediate sweep without moving the schedule.
func (s *Scheduler) RunNow() error {
	return s.job.RunNow()
}

// NextRun reports when the sweep runs next.
func (s *Scheduler) NextRun() (time.Time, error) {
	return s.job.NextRun()
}

// Stop waits for a running sweep and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	r, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.log.Error("scheduled sweep failed", "error", err, "evaluated", r.Evaluated, "failed", r.Failed)
		return
	}
	s.log.Debug("scheduled sweep done", "evaluated", r.Evaluated, "took", r.Took)
}
