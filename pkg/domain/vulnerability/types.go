// Package vulnerability models detected findings, their lifecycle actions
// and the approval history workflow.
package vulnerability

import (
	"strconv"
	"strings"
)

// Severity is the normalized severity scale, info through critical.
type Severity int

// Severity levels.
const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// IsValid reports whether the severity is on the scale.
func (s Severity) IsValid() bool {
	return s >= SeverityInfo && s <= SeverityCritical
}

// ParseSeverity normalizes a scanner-provided severity. The scanner sends
// either a numeric id ("0".."4") or a name; both map onto the scale.
func ParseSeverity(raw string) Severity {
	raw = strings.TrimSpace(strings.ToLower(raw))

	if n, err := strconv.Atoi(raw); err == nil {
		if s := Severity(n); s.IsValid() {
			return s
		}
		return SeverityInfo
	}

	switch raw {
	case "info", "informational":
		return SeverityInfo
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// PortProtocol derives the combined port/protocol label, e.g. "443/tcp".
func PortProtocol(port int, protocol string) string {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	if protocol == "" {
		protocol = "tcp"
	}
	return strconv.Itoa(port) + "/" + protocol
}

// SplitField wraps a scanner multi-value field as an array. The scanner
// returns seeAlso newline-separated and cve comma-separated.
func SplitField(raw string, seps ...string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := []string{raw}
	for _, sep := range seps {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
