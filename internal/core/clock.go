package core

import "time"

// DefaultEncounterBudget is the time allowed for one encounter.
const DefaultEncounterBudget = 600 * time.Second

// Remaining is the time left in an encounter started at start.  It never
// exceeds budget and never drops below zero.
func Remaining(start, now time.Time, budget time.Duration) time.Duration {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	left := budget - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the encounter budget is used up.
func Expired(start, now time.Time, budget time.Duration) bool {
	return Remaining(start, now, budget) == 0
}
