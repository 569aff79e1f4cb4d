// Package schedule computes a day's posting plan: a sorted sequence of
// timestamped slots sampled from a weighted time-of-day distribution.
package schedule

import (
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/plumekit/plume/internal/setup/config"
)

// ErrNoAvailableHours means the configured weights leave no hour to post in.
var ErrNoAvailableHours = errors.New("no schedulable hours: every hour has zero weight")

// Kind is the content kind of a scheduled slot.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Slot is one planned post: a timestamp and a content kind. Slots are
// ephemeral; they are regenerated each day and never persisted.
type Slot struct {
	At   time.Time
	Kind Kind
}

// Scheduler samples post times from a discrete weighted distribution over the
// 24 hours of a day. Hours in the avoided window carry zero weight, high
// activity hours carry the highest weight, and everything else a low nonzero
// weight. The cumulative weight table is built once from configuration.
type Scheduler struct {
	cfg        *config.Schedule
	rng        *rand.Rand
	cumWeights [24]int
	total      int
}

// NewScheduler builds the weight table. The random source is injectable so
// tests can supply a deterministic seed.
func NewScheduler(cfg *config.Schedule, rng *rand.Rand) (*Scheduler, error) {
	high := make(map[int]struct{}, len(cfg.HighActivityHours))
	for _, h := range cfg.HighActivityHours {
		high[h] = struct{}{}
	}

	s := &Scheduler{cfg: cfg, rng: rng}

	running := 0

	for h := 0; h < 24; h++ {
		weight := cfg.BaseWeight

		if _, ok := high[h]; ok {
			weight = cfg.HighWeight
		}

		if h >= cfg.AvoidStartHour && h < cfg.AvoidEndHour {
			weight = 0
		}

		running += weight
		s.cumWeights[h] = running
	}

	if running == 0 {
		return nil, ErrNoAvailableHours
	}

	s.total = running

	return s, nil
}

// PlanDay produces the ordered slot sequence for the given day, honoring the
// per-kind quotas. A zero total quota yields an empty plan. Slots already in
// the past are the caller's problem; the plan always covers the whole day.
func (s *Scheduler) PlanDay(day time.Time) []Slot {
	slots := make([]Slot, 0, s.cfg.TextPostsPerDay+s.cfg.ImagePostsPerDay)

	for i := 0; i < s.cfg.TextPostsPerDay; i++ {
		slots = append(slots, Slot{At: s.sampleTime(day), Kind: KindText})
	}

	for i := 0; i < s.cfg.ImagePostsPerDay; i++ {
		slots = append(slots, Slot{At: s.sampleTime(day), Kind: KindImage})
	}

	// Stable sort keeps the relative order of equal-kind slots on a tie.
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].At.Before(slots[j].At)
	})

	// Equal timestamps collapse badly into a single burst, so the later
	// slot of a tie is nudged one minute forward, skipping the avoided
	// window if the nudge would land inside it. A nudge never leaves the
	// planned day: ties piling up against midnight degrade to one-second
	// steps inside the final minute.
	for i := 1; i < len(slots); i++ {
		if slots[i].At.After(slots[i-1].At) {
			continue
		}

		next := slots[i-1].At.Add(time.Minute)
		if h := next.Hour(); sameDay(next, day) && h >= s.cfg.AvoidStartHour && h < s.cfg.AvoidEndHour {
			next = time.Date(next.Year(), next.Month(), next.Day(),
				s.cfg.AvoidEndHour, 0, 0, 0, next.Location())
		}

		if !sameDay(next, day) {
			next = slots[i-1].At.Add(time.Second)
			if !sameDay(next, day) {
				next = slots[i-1].At
			}
		}

		slots[i].At = next
	}

	return slots
}

// Upcoming filters out slots that are already in the past, so replanning
// mid-day never replays elapsed slots.
func Upcoming(slots []Slot, now time.Time) []Slot {
	for i, slot := range slots {
		if slot.At.After(now) {
			return slots[i:]
		}
	}

	return nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// sampleTime draws an hour through the cumulative weight table and a uniform
// minute within it.
func (s *Scheduler) sampleTime(day time.Time) time.Time {
	draw := s.rng.Intn(s.total)

	hour := 0
	for h, cum := range s.cumWeights {
		if draw < cum {
			hour = h
			break
		}
	}

	minute := s.rng.Intn(60)

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
