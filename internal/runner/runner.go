// Package runner hosts the long-running loop: it plans each day's posting
// slots, fires post cycles when slots come due, and polls for reply
// opportunities on a fixed interval.
package runner

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/plumekit/plume/internal/engage"
	"github.com/plumekit/plume/internal/poster"
	"github.com/plumekit/plume/internal/schedule"
	"github.com/plumekit/plume/internal/setup/config"
	"github.com/plumekit/plume/internal/state"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Runner owns the posting and reply loops. A single mutex serializes every
// state-mutating cycle so the two loops never interleave writes.
type Runner struct {
	cfg          *config.Config
	scheduler    *schedule.Scheduler
	poster       *poster.Poster
	orchestrator *engage.Orchestrator
	store        *state.Store
	logger       *zap.Logger

	mu sync.Mutex
	st *state.State
}

// New creates a runner with a time-seeded scheduler.
func New(
	cfg *config.Config, p *poster.Poster, o *engage.Orchestrator,
	store *state.Store, logger *zap.Logger,
) (*Runner, error) {
	scheduler, err := schedule.NewScheduler(&cfg.Schedule, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:          cfg,
		scheduler:    scheduler,
		poster:       p,
		orchestrator: o,
		store:        store,
		logger:       logger.Named("runner"),
	}, nil
}

// Run loads state and drives both loops until the context is canceled. An
// in-flight cycle is allowed to finish; only the waiting between cycles is
// interruptible.
func (r *Runner) Run(ctx context.Context) {
	r.st = r.store.Load()

	var wg conc.WaitGroup

	wg.Go(func() { r.postLoop(ctx) })

	if r.cfg.Reply.Enabled {
		wg.Go(func() { r.replyLoop(ctx) })
	} else {
		r.logger.Info("Reply loop disabled by configuration")
	}

	wg.Wait()
	r.logger.Info("Runner stopped")
}

// postLoop plans one day at a time. Slots already elapsed at planning time
// are dropped rather than replayed, so a restart mid-day only runs the
// remainder of the plan.
func (r *Runner) postLoop(ctx context.Context) {
	for {
		now := time.Now()
		slots := schedule.Upcoming(r.scheduler.PlanDay(now), now)

		r.logger.Info("Planned posting slots for today",
			zap.String("day", now.Format(state.DayKeyFormat)),
			zap.Int("slots", len(slots)))

		for _, slot := range slots {
			if !r.sleepUntil(ctx, slot.At) {
				return
			}

			r.runPostCycle(ctx, slot.Kind)
		}

		// Wait out the rest of the day, then plan the next one.
		if !r.sleepUntil(ctx, nextMidnight(time.Now())) {
			return
		}
	}
}

// replyLoop fires a reply cycle every poll interval. Failures are logged and
// the loop keeps going; only cancellation stops it.
func (r *Runner) replyLoop(ctx context.Context) {
	interval := time.Duration(r.cfg.Reply.PollIntervalMinutes) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Reply loop started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runReplyCycle(ctx)
		}
	}
}

func (r *Runner) runPostCycle(ctx context.Context, kind schedule.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.poster.RunCycle(ctx, r.st, kind); err != nil {
		if errors.Is(err, poster.ErrQuotaReached) {
			return
		}

		r.logger.Warn("Post cycle failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (r *Runner) runReplyCycle(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome, err := r.orchestrator.RunCycle(ctx, r.st)
	if err != nil {
		r.logger.Warn("Reply cycle failed", zap.Error(err))
		return
	}

	r.logger.Debug("Reply cycle finished", zap.String("outcome", string(outcome)))
}

// sleepUntil blocks until the deadline or cancellation. It reports whether
// the deadline was reached.
func (r *Runner) sleepUntil(ctx context.Context, deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		return true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}
