package planner

import "time"

// Slot is a half-open [Start, End) interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Minutes returns the slot length in whole minutes.
func (s Slot) Minutes() int {
	return int(s.End.Sub(s.Start) / time.Minute)
}

// Overlaps reports whether the two half-open intervals intersect.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && s.End.After(start)
}

// BusyInterval is time the user is already committed to. SourceID is opaque.
type BusyInterval struct {
	Start    time.Time
	End      time.Time
	SourceID string
}

// Window is the planning range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// PlanningWindow starts at studyStart (or now when nil) and ends at local
// midnight of the due date, so the due day itself is never planned.
func PlanningWindow(studyStart *time.Time, dueAt, now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	start := now
	if studyStart != nil && !studyStart.IsZero() {
		start = *studyStart
	}
	due := dueAt.In(loc)
	return Window{
		Start: start.In(loc),
		End:   time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, loc),
	}
}

// EnumerateSlots lists every session-length slot inside the window that falls on an
// allowed weekday, inside the daily hours, and clear of all busy intervals. Slots on a
// day start at the later of the window start and the day start and advance by
// Session+Break. Output is chronological.
func EnumerateSlots(prefs Preferences, busy []BusyInterval, window Window) []Slot {
	if prefs.Session <= 0 || !window.Start.Before(window.End) {
		return nil
	}
	loc := window.Start.Location()
	end := window.End.In(loc)
	step := prefs.Session + prefs.Break

	var slots []Slot
	first := time.Date(window.Start.Year(), window.Start.Month(), window.Start.Day(), 0, 0, 0, 0, loc)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !prefs.Weekdays.Has(day.Weekday()) {
			continue
		}
		lo := maxTime(window.Start, atOffset(day, prefs.DayStart))
		hi := minTime(end, atOffset(day, prefs.DayEnd))
		if !lo.Before(hi) {
			continue
		}
		for cursor := lo; !cursor.Add(prefs.Session).After(hi); cursor = cursor.Add(step) {
			candidate := Slot{Start: cursor, End: cursor.Add(prefs.Session)}
			if !overlapsAny(candidate, busy) {
				slots = append(slots, candidate)
			}
		}
	}
	return slots
}

func overlapsAny(s Slot, busy []BusyInterval) bool {
	for _, b := range busy {
		if s.Overlaps(b.Start, b.End) {
			return true
		}
	}
	return false
}

// atOffset anchors a time-of-day offset on the given local midnight using wall-clock
// fields, so DST transitions do not shift the preferred hours.
func atOffset(midnight time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	s := int(offset % time.Minute / time.Second)
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(), h, m, s, 0, midnight.Location())
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
