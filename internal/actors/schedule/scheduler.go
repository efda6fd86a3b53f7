package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Sweeper is the job ticked by the scheduler.
type Sweeper interface {
	// CleanUpPendingUsers runs one sweep over the pending partition.
	CleanUpPendingUsers(ctx context.Context) error
}

// SchedulerArgs contain the mandatory arguments to build a Scheduler.
type SchedulerArgs struct {
	// Schedule is the cron expression of the sweep, e.g. "0 * * * *" for hourly.
	Schedule string

	// Sweeper is the job to run on every tick.
	Sweeper Sweeper
}

// NewScheduler creates a new Scheduler. The cron expression is validated upfront.
func NewScheduler(args SchedulerArgs) (*Scheduler, error) {
	if args.Sweeper == nil {
		return nil, errors.New("nil sweeper")
	}

	s := &Scheduler{cron: cron.New()}
	_, err := s.cron.AddFunc(args.Schedule, func() {
		if err := args.Sweeper.CleanUpPendingUsers(context.Background()); err != nil {
			log.WithError(err).Error("scheduled pending-user sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", args.Schedule, err)
	}
	return s, nil
}

// Scheduler ticks the pending-user sweep on a cron schedule. Each tick is an
// independent run; a failing run is logged and the next tick retries from scratch.
type Scheduler struct {
	cron *cron.Cron
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info("pending-user sweep scheduler started")
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("pending-user sweep scheduler stopped")
}
