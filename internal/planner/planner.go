// Package planner computes self-study sessions for a deadline. Everything here is
// pure: identical inputs always produce identical output.
package planner

import "time"

// Input is everything one planning run needs after the data fetch.
type Input struct {
	Preferences     Preferences
	Busy            []BusyInterval
	Window          Window
	RequiredMinutes int
}

// Plan is the outcome of the candidate and allocation stages.
type Plan struct {
	Candidates       []Slot
	Allocations      []Allocation
	RequiredMinutes  int
	CapacityMinutes  int
	ScheduledMinutes int
}

// ShortfallMinutes is the part of the requirement that did not fit.
func (p Plan) ShortfallMinutes() int {
	if p.ScheduledMinutes >= p.RequiredMinutes {
		return 0
	}
	return p.RequiredMinutes - p.ScheduledMinutes
}

// Build enumerates candidates and allocates the required minutes across them.
func Build(in Input) Plan {
	plan := Plan{RequiredMinutes: in.RequiredMinutes}
	if in.RequiredMinutes <= 0 {
		return plan
	}
	sessionMinutes := int(in.Preferences.Session / time.Minute)

	plan.Candidates = EnumerateSlots(in.Preferences, in.Busy, in.Window)
	plan.CapacityMinutes = len(plan.Candidates) * sessionMinutes
	plan.Allocations = Allocate(plan.Candidates, in.RequiredMinutes, sessionMinutes, in.Window.End)
	for _, a := range plan.Allocations {
		plan.ScheduledMinutes += a.Minutes
	}
	return plan
}
