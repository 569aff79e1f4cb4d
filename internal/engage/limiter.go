package engage

import (
	"math/rand"
	"time"

	"github.com/plumekit/plume/internal/setup/config"
	"github.com/plumekit/plume/internal/state"
)

// Limiter enforces the daily reply ceiling and paces consecutive replies with
// a randomized delay so reply timing does not look mechanical. The limiter
// holds no counters itself; those live in the state aggregate.
type Limiter struct {
	dailyCap int
	minDelay time.Duration
	maxDelay time.Duration
	rng      *rand.Rand
}

// NewLimiter creates a limiter from reply configuration. The random source is
// injectable so tests can supply a deterministic stream.
func NewLimiter(cfg *config.Reply, rng *rand.Rand) *Limiter {
	return &Limiter{
		dailyCap: cfg.DailyCap,
		minDelay: time.Duration(cfg.MinDelaySeconds) * time.Second,
		maxDelay: time.Duration(cfg.MaxDelaySeconds) * time.Second,
		rng:      rng,
	}
}

// CanReplyNow reports whether another reply is allowed: the daily cap must not
// be reached and at least the minimum delay must have passed since the last
// reply.
func (l *Limiter) CanReplyNow(day state.DailyCounters, lastReplyAt, now time.Time) bool {
	if day.Replies >= l.dailyCap {
		return false
	}

	if !lastReplyAt.IsZero() && now.Sub(lastReplyAt) < l.minDelay {
		return false
	}

	return true
}

// NextDelay samples a uniform delay within the configured window.
func (l *Limiter) NextDelay() time.Duration {
	if l.maxDelay <= l.minDelay {
		return l.minDelay
	}

	return l.minDelay + time.Duration(l.rng.Int63n(int64(l.maxDelay-l.minDelay)+1))
}
