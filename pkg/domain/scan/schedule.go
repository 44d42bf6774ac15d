package scan

import (
	"strings"
	"time"
)

// ScheduleOverlaps reports whether two start times fall within buffer
// minutes of each other. Symmetric in a and b; exactly false one minute
// past the buffer.
func ScheduleOverlaps(a, b time.Time, bufferMinutes int) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(bufferMinutes)*time.Minute
}

// TargetsOverlap reports whether any trimmed target is shared between the
// two groups. Whitespace differences are ignored.
func TargetsOverlap(group1, group2 []string) bool {
	seen := make(map[string]bool, len(group1))
	for _, t := range group1 {
		trimmed := strings.TrimSpace(t)
		if trimmed != "" {
			seen[trimmed] = true
		}
	}
	for _, t := range group2 {
		if seen[strings.TrimSpace(t)] {
			return true
		}
	}
	return false
}

// CanEdit reports whether a scan may be edited at the given instant.
// Editing is locked while now is within buffer minutes of the scheduled
// start, so a running or imminent scan is never modified mid-flight.
func CanEdit(now, scanTime time.Time, bufferMinutes int) bool {
	return !ScheduleOverlaps(now, scanTime, bufferMinutes)
}
