package planner

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExampleScenario(t *testing.T) {
	plan := Build(Input{
		Preferences:     monWedPrefs(),
		Window:          Window{Start: at(1, 9, 0), End: at(8, 0, 0)},
		RequiredMinutes: 240,
	})

	assert.Len(t, plan.Candidates, 6)
	assert.Equal(t, 360, plan.CapacityMinutes)
	assert.Equal(t, 240, plan.ScheduledMinutes)
	assert.Zero(t, plan.ShortfallMinutes())
	require.Len(t, plan.Allocations, 4)
	assert.Equal(t, at(1, 9, 0), plan.Allocations[0].Slot.Start)
	assert.Equal(t, at(1, 11, 0), plan.Allocations[1].Slot.Start)
	assert.Equal(t, at(3, 9, 0), plan.Allocations[2].Slot.Start)
	assert.Equal(t, at(3, 11, 0), plan.Allocations[3].Slot.Start)
}

func TestBuildReportsShortfall(t *testing.T) {
	plan := Build(Input{
		Preferences:     monWedPrefs(),
		Window:          Window{Start: at(1, 9, 0), End: at(8, 0, 0)},
		RequiredMinutes: 600,
	})

	assert.Len(t, plan.Allocations, 6)
	assert.Equal(t, 360, plan.ScheduledMinutes)
	assert.Equal(t, 240, plan.ShortfallMinutes())
}

func TestBuildZeroRequirement(t *testing.T) {
	plan := Build(Input{Preferences: monWedPrefs(), Window: Window{Start: at(1, 9, 0), End: at(8, 0, 0)}})

	assert.Empty(t, plan.Candidates)
	assert.Empty(t, plan.Allocations)
	assert.Zero(t, plan.ShortfallMinutes())
}

// Randomized inputs with a fixed seed: every plan must respect the daily hours,
// weekdays, busy intervals and window, never overlap itself and schedule exactly
// min(required, capacity) minutes.
func TestBuildInvariantsOnRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(20240101))

	for run := 0; run < 200; run++ {
		var days WeekdaySet
		for d := 0; d < 7; d++ {
			days[d] = rng.Intn(2) == 0
		}
		days[rng.Intn(7)] = true
		startHour := 6 + rng.Intn(6)
		prefs := Preferences{
			Weekdays: days,
			DayStart: time.Duration(startHour) * time.Hour,
			DayEnd:   time.Duration(startHour+2+rng.Intn(8)) * time.Hour,
			Break:    time.Duration(rng.Intn(4)*5) * time.Minute,
			Session:  time.Duration(30+rng.Intn(4)*15) * time.Minute,
		}
		window := Window{
			Start: at(1, rng.Intn(24), rng.Intn(60)),
			End:   at(2+rng.Intn(20), 0, 0),
		}
		var busy []BusyInterval
		for i := rng.Intn(15); i > 0; i-- {
			s := at(1+rng.Intn(20), rng.Intn(24), rng.Intn(4)*15)
			busy = append(busy, BusyInterval{Start: s, End: s.Add(time.Duration(15+rng.Intn(180)) * time.Minute)})
		}
		required := rng.Intn(1500)

		plan := Build(Input{Preferences: prefs, Busy: busy, Window: window, RequiredMinutes: required})
		again := Build(Input{Preferences: prefs, Busy: busy, Window: window, RequiredMinutes: required})
		require.Equal(t, plan, again, "run %d not deterministic", run)

		want := required
		if plan.CapacityMinutes < want {
			want = plan.CapacityMinutes
		}
		require.Equal(t, want, plan.ScheduledMinutes, "run %d", run)

		for i, a := range plan.Allocations {
			end := a.End()
			require.True(t, days.Has(a.Slot.Start.Weekday()), "run %d weekday", run)
			require.False(t, a.Slot.Start.Before(window.Start), "run %d before window", run)
			require.False(t, end.After(window.End), "run %d after window", run)
			require.False(t, a.Slot.Start.Before(atOffset(midnight(a.Slot.Start), prefs.DayStart)), "run %d before day start", run)
			require.False(t, end.After(atOffset(midnight(a.Slot.Start), prefs.DayEnd)), "run %d after day end", run)
			require.LessOrEqual(t, a.Minutes, int(prefs.Session/time.Minute))
			for _, b := range busy {
				require.False(t, a.Slot.Start.Before(b.End) && end.After(b.Start), "run %d busy overlap", run)
			}
			if i > 0 {
				require.False(t, a.Slot.Start.Before(plan.Allocations[i-1].End()), "run %d session overlap", run)
			}
		}
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
