package testutil

import "time"

// ExecutionRecord holds the start and end times for a single step's execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two windows ran at the same time.
func (r *ExecutionRecord) Overlaps(other *ExecutionRecord) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}
