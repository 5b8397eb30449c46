package planner

import (
	"math"
	"sort"
	"time"
)

// Allocation is one chosen slot and the minutes of study placed at its start.
type Allocation struct {
	Slot    Slot `json:"slot"`
	Minutes int  `json:"minutes"`
}

// End is the session end implied by the allocation.
func (a Allocation) End() time.Time {
	return a.Slot.Start.Add(time.Duration(a.Minutes) * time.Minute)
}

// SessionsNeeded is ceil(required/sessionMinutes).
func SessionsNeeded(requiredMinutes, sessionMinutes int) int {
	if requiredMinutes <= 0 || sessionMinutes <= 0 {
		return 0
	}
	return (requiredMinutes + sessionMinutes - 1) / sessionMinutes
}

// Allocate spreads the required minutes over the candidate slots. It picks
// min(sessionsNeeded, len(candidates)) slots at evenly spaced indices, apportions
// the minutes base/remainder style, and clamps each session to its slot and to
// windowEnd. Sessions clamped to nothing are dropped.
func Allocate(candidates []Slot, requiredMinutes, sessionMinutes int, windowEnd time.Time) []Allocation {
	use := SessionsNeeded(requiredMinutes, sessionMinutes)
	if use > len(candidates) {
		use = len(candidates)
	}
	if use == 0 {
		return nil
	}

	indices := spreadIndices(len(candidates), use)
	base := requiredMinutes / use
	remainder := requiredMinutes % use

	allocations := make([]Allocation, 0, use)
	for i, idx := range indices {
		slot := candidates[idx]
		minutes := base
		if i < remainder {
			minutes++
		}
		end := slot.Start.Add(time.Duration(minutes) * time.Minute)
		if end.After(slot.End) {
			end = slot.End
		}
		if !windowEnd.IsZero() && end.After(windowEnd) {
			end = windowEnd
		}
		minutes = int(end.Sub(slot.Start) / time.Minute)
		if minutes <= 0 {
			continue
		}
		allocations = append(allocations, Allocation{Slot: slot, Minutes: minutes})
	}
	return allocations
}

// spreadIndices returns use distinct, ascending indices in [0, n). The first pass
// places round(i*(n-1)/(use-1)); collisions are dropped and the gap is filled with
// the earliest unused candidates.
func spreadIndices(n, use int) []int {
	if use <= 0 || n <= 0 {
		return nil
	}
	if use == 1 {
		return []int{0}
	}

	seen := make(map[int]bool, use)
	picked := make([]int, 0, use)
	for i := 0; i < use; i++ {
		idx := int(math.Floor(float64(i*(n-1))/float64(use-1) + 0.5))
		if seen[idx] {
			continue
		}
		seen[idx] = true
		picked = append(picked, idx)
	}
	for idx := 0; idx < n && len(picked) < use; idx++ {
		if !seen[idx] {
			seen[idx] = true
			picked = append(picked, idx)
		}
	}
	sort.Ints(picked)
	return picked
}
