package vulnerability

import "time"

// Severity-dependent remediation deadlines, in days from first sighting.
var slaDays = map[Severity]int{
	SeverityCritical: 7,
	SeverityHigh:     30,
	SeverityMedium:   60,
	SeverityLow:      90,
	SeverityInfo:     180,
}

// SLADeadline returns the remediation deadline for the vulnerability.
func (v *Vulnerability) SLADeadline() time.Time {
	days, ok := slaDays[v.Severity]
	if !ok {
		days = 180
	}
	firstSeen := time.Unix(v.FirstSeen, 0)
	if v.FirstSeen == 0 {
		firstSeen = v.CreatedAt
	}
	return firstSeen.AddDate(0, 0, days)
}

// WithinSLA reports whether the vulnerability is still inside its
// remediation window at the given instant.
func (v *Vulnerability) WithinSLA(now time.Time) bool {
	return !now.After(v.SLADeadline())
}
