package schedule_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/plumekit/plume/internal/schedule"
	"github.com/plumekit/plume/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planDay(t *testing.T, cfg *config.Schedule, seed int64) []schedule.Slot {
	t.Helper()

	scheduler, err := schedule.NewScheduler(cfg, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	return scheduler.PlanDay(day)
}

func TestPlanDayQuotasAndWindow(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Schedule
	cfg.TextPostsPerDay = 10
	cfg.ImagePostsPerDay = 5

	for seed := int64(0); seed < 25; seed++ {
		slots := planDay(t, &cfg, seed)
		require.Len(t, slots, 15)

		var text, image int

		for i, slot := range slots {
			switch slot.Kind {
			case schedule.KindText:
				text++
			case schedule.KindImage:
				image++
			}

			h := slot.At.Hour()
			assert.False(t, h >= 2 && h < 7,
				"slot %v landed in the avoided window", slot.At)

			if i > 0 {
				assert.True(t, slot.At.After(slots[i-1].At),
					"slots must be strictly ascending, got %v then %v", slots[i-1].At, slot.At)
			}
		}

		assert.Equal(t, 10, text)
		assert.Equal(t, 5, image)
	}
}

func TestPlanDayZeroQuota(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Schedule
	cfg.TextPostsPerDay = 0
	cfg.ImagePostsPerDay = 0

	assert.Empty(t, planDay(t, &cfg, 1))
}

func TestPlanDayResolvesTies(t *testing.T) {
	t.Parallel()

	// Squeeze more slots than minutes into a single available hour so
	// collisions are guaranteed.
	cfg := config.Default().Schedule
	cfg.AvoidStartHour = 0
	cfg.AvoidEndHour = 23
	cfg.HighActivityHours = nil
	cfg.TextPostsPerDay = 61
	cfg.ImagePostsPerDay = 0

	slots := planDay(t, &cfg, 3)
	require.Len(t, slots, 61)

	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i].At.After(slots[i-1].At))
	}
}

func TestPlanDayDeterministicForSeed(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Schedule

	first := planDay(t, &cfg, 42)
	second := planDay(t, &cfg, 42)
	assert.Equal(t, first, second)
}

func TestPlanDayTiesStayWithinDay(t *testing.T) {
	t.Parallel()

	// Only the last two hours of the day are available, with more slots than
	// minutes, so tie nudges pile up against midnight.
	cfg := config.Default().Schedule
	cfg.AvoidStartHour = 0
	cfg.AvoidEndHour = 22
	cfg.HighActivityHours = nil
	cfg.TextPostsPerDay = 130
	cfg.ImagePostsPerDay = 0

	for seed := int64(0); seed < 10; seed++ {
		slots := planDay(t, &cfg, seed)
		require.Len(t, slots, 130)

		for i, slot := range slots {
			assert.Equal(t, 1, slot.At.Day(), "slot %v left the planned day", slot.At)

			if i > 0 {
				assert.True(t, slot.At.After(slots[i-1].At),
					"slots must stay strictly ascending, got %v then %v", slots[i-1].At, slot.At)
			}
		}
	}
}

func TestUpcomingDropsElapsedSlots(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	slots := []schedule.Slot{
		{At: day.Add(8 * time.Hour), Kind: schedule.KindText},
		{At: day.Add(12 * time.Hour), Kind: schedule.KindImage},
		{At: day.Add(20 * time.Hour), Kind: schedule.KindText},
	}

	upcoming := schedule.Upcoming(slots, day.Add(12*time.Hour))
	require.Len(t, upcoming, 1)
	assert.Equal(t, slots[2], upcoming[0])

	assert.Empty(t, schedule.Upcoming(slots, day.Add(24*time.Hour)))
	assert.Len(t, schedule.Upcoming(slots, day), 3)
}

func TestNewSchedulerAllHoursAvoided(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Schedule
	cfg.AvoidStartHour = 0
	cfg.AvoidEndHour = 24

	_, err := schedule.NewScheduler(&cfg, rand.New(rand.NewSource(1)))
	require.ErrorIs(t, err, schedule.ErrNoAvailableHours)
}

func TestPlanDayFavorsHighActivityHours(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Schedule
	cfg.TextPostsPerDay = 200
	cfg.ImagePostsPerDay = 0

	high := make(map[int]struct{})
	for _, h := range cfg.HighActivityHours {
		high[h] = struct{}{}
	}

	slots := planDay(t, &cfg, 7)

	var inHigh int

	for _, slot := range slots {
		if _, ok := high[slot.At.Hour()]; ok {
			inHigh++
		}
	}

	// 11 high hours at weight 3 versus 8 low hours at weight 1: high
	// activity hours should take well over half the slots.
	assert.Greater(t, inHigh, len(slots)/2)
}
