package keeper

import (
	"context"
	"time"

	"github.com/elys-network/joint/internal/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// Scheduler runs jobs on cron schedules. A job still running when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     zerolog.Logger
	ctx     context.Context
	timeout time.Duration
}

// NewScheduler creates a scheduler whose jobs run under ctx, each bounded by timeout when positive.
func NewScheduler(ctx context.Context, timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     logger.GetForComponent("scheduler"),
		ctx:     ctx,
		timeout: timeout,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	<-done.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job. Schedules use the standard five fields or descriptors such as
// "@every 10m" and "@hourly".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.RunNow(job); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	started := time.Now()
	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	err := job.Run(ctx)
	s.log.Debug().Str("job", job.Name()).Dur("took", time.Since(started)).Msg("Job completed")
	return err
}

// EpochJob ends and starts epochs.
type EpochJob struct{ Keeper *Keeper }

func (j EpochJob) Name() string { return "epoch" }
func (j EpochJob) Run(ctx context.Context) error { return j.Keeper.RunCycle(ctx) }

// ProjectionJob refreshes projections.
type ProjectionJob struct{ Keeper *Keeper }

func (j ProjectionJob) Name() string { return "projection" }
func (j ProjectionJob) Run(ctx context.Context) error { return j.Keeper.RefreshProjections(ctx) }
