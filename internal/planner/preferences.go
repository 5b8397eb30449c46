package planner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

const (
	// DefaultBreak is used when the stored break duration cannot be parsed.
	DefaultBreak = 10 * time.Minute
	// DefaultSession is used when the stored session duration is unusable.
	DefaultSession = time.Hour
)

// RawPreferences are the user's availability settings as stored.
type RawPreferences struct {
	StudyDays       string
	StartTime       string
	EndTime         string
	BreakTime       string
	SessionDuration string
}

// WeekdaySet is a set of allowed weekdays indexed by time.Weekday.
type WeekdaySet [7]bool

// Has reports whether day is in the set.
func (w WeekdaySet) Has(day time.Weekday) bool {
	return w[day]
}

// Len returns the number of allowed days.
func (w WeekdaySet) Len() int {
	n := 0
	for _, ok := range w {
		if ok {
			n++
		}
	}
	return n
}

// Preferences is the typed, validated snapshot used by one planning run.
// DayStart and DayEnd are offsets from local midnight.
type Preferences struct {
	Weekdays WeekdaySet
	DayStart time.Duration
	DayEnd   time.Duration
	Break    time.Duration
	Session  time.Duration
}

var weekdayNames = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
}

// ResolvePreferences parses raw settings. Weekday and time-of-day problems are
// configuration errors; malformed durations fall back to DefaultBreak and DefaultSession.
func ResolvePreferences(raw RawPreferences) (Preferences, error) {
	var prefs Preferences

	days, err := ParseWeekdays(raw.StudyDays)
	if err != nil {
		return prefs, err
	}
	prefs.Weekdays = days

	start, err := parseTimeOfDay(raw.StartTime)
	if err != nil {
		return prefs, appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("invalid preferred start time %q", raw.StartTime))
	}
	end, err := parseTimeOfDay(raw.EndTime)
	if err != nil {
		return prefs, appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("invalid preferred end time %q", raw.EndTime))
	}
	if start >= end {
		return prefs, appErrors.Clone(appErrors.ErrConfiguration, "preferred start time must be before end time")
	}
	prefs.DayStart = start
	prefs.DayEnd = end

	prefs.Break = DefaultBreak
	if d, err := ParseClockDuration(raw.BreakTime); err == nil && d >= 0 {
		prefs.Break = d
	}

	prefs.Session = DefaultSession
	if d, err := ParseClockDuration(raw.SessionDuration); err == nil && d > 0 {
		prefs.Session = d
	}

	return prefs, nil
}

// ParseWeekdays maps a comma separated list of English day names to a WeekdaySet.
// Trailing separators are tolerated; an empty entry before a day name is not.
func ParseWeekdays(raw string) (WeekdaySet, error) {
	var set WeekdaySet
	tokens := strings.Split(raw, ",")
	for len(tokens) > 0 && strings.TrimSpace(tokens[len(tokens)-1]) == "" {
		tokens = tokens[:len(tokens)-1]
	}
	for i, token := range tokens {
		name := strings.ToUpper(strings.TrimSpace(token))
		if name == "" {
			return set, appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("empty study day at position %d in %q", i+1, raw))
		}
		day, ok := weekdayNames[name]
		if !ok {
			return set, appErrors.Clone(appErrors.ErrConfiguration, fmt.Sprintf("unknown study day %q", strings.TrimSpace(token)))
		}
		set[day] = true
	}
	if set.Len() == 0 {
		return set, appErrors.Clone(appErrors.ErrConfiguration, "at least one preferred study day is required")
	}
	return set, nil
}

// ParseClockDuration parses "HH:MM" into a duration. Extra ":SS" parts are ignored.
func ParseClockDuration(raw string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("duration %q is not HH:MM", raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", raw, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", raw, err)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

func parseTimeOfDay(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	var t time.Time
	var err error
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err = time.Parse(layout, raw); err == nil {
			break
		}
	}
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}
