package vulnerability

import (
	"time"

	"github.com/vulnwarden/api/pkg/domain/shared"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind identifies a lifecycle action. At most one action is active on a
// vulnerability at any time.
type Kind string

// Action kinds.
const (
	KindFalsePositive     Kind = "false_positive"
	KindSecurityException Kind = "security_exception"
	KindProposedCloseDate Kind = "proposed_close_date"
)

// IsValid reports whether the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindFalsePositive, KindSecurityException, KindProposedCloseDate:
		return true
	default:
		return false
	}
}

// FalsePositive marks a finding as not a real issue.
type FalsePositive struct {
	Reason string    `bson:"reason" json:"reason"`
	SetBy  string    `bson:"set_by" json:"set_by"`
	SetAt  time.Time `bson:"set_at" json:"set_at"`
}

// SecurityException accepts the risk for a bounded period.
type SecurityException struct {
	StartDate time.Time `bson:"start_date" json:"start_date"`
	EndDate   time.Time `bson:"end_date" json:"end_date"`
	Reason    string    `bson:"reason" json:"reason"`
	SetBy     string    `bson:"set_by" json:"set_by"`
	SetAt     time.Time `bson:"set_at" json:"set_at"`
}

// ProposedCloseDate proposes a remediation deadline. Always subject to
// explicit approval, regardless of who proposes it.
type ProposedCloseDate struct {
	Date   time.Time `bson:"date" json:"date"`
	Reason string    `bson:"reason" json:"reason"`
	SetBy  string    `bson:"set_by" json:"set_by"`
	SetAt  time.Time `bson:"set_at" json:"set_at"`
}

// Action is the tagged union over the mutually exclusive lifecycle actions.
// Exactly one payload field matches Kind.
type Action struct {
	Kind              Kind
	FalsePositive     *FalsePositive
	SecurityException *SecurityException
	ProposedCloseDate *ProposedCloseDate
}

// NewFalsePositive builds a false-positive action.
func NewFalsePositive(reason string) Action {
	return Action{
		Kind:          KindFalsePositive,
		FalsePositive: &FalsePositive{Reason: reason},
	}
}

// NewSecurityException builds a security-exception action.
func NewSecurityException(start, end time.Time, reason string) Action {
	return Action{
		Kind:              KindSecurityException,
		SecurityException: &SecurityException{StartDate: start, EndDate: end, Reason: reason},
	}
}

// NewProposedCloseDate builds a proposed-close-date action.
func NewProposedCloseDate(date time.Time, reason string) Action {
	return Action{
		Kind:              KindProposedCloseDate,
		ProposedCloseDate: &ProposedCloseDate{Date: date, Reason: reason},
	}
}

// Validate checks the action payload against its required shape.
func (a Action) Validate() error {
	switch a.Kind {
	case KindFalsePositive:
		if a.FalsePositive == nil || a.FalsePositive.Reason == "" {
			return shared.NewDomainError("VALIDATION", "false_positive requires a reason", shared.ErrValidation)
		}
	case KindSecurityException:
		se := a.SecurityException
		if se == nil || se.StartDate.IsZero() || se.EndDate.IsZero() {
			return shared.NewDomainError("VALIDATION", "security_exception requires start_date and end_date", shared.ErrValidation)
		}
		if !se.EndDate.After(se.StartDate) {
			return shared.NewDomainError("VALIDATION", "security_exception end_date must be after start_date", shared.ErrValidation)
		}
	case KindProposedCloseDate:
		if a.ProposedCloseDate == nil || a.ProposedCloseDate.Date.IsZero() {
			return shared.NewDomainError("VALIDATION", "proposed_close_date requires a date", shared.ErrValidation)
		}
	default:
		return shared.NewDomainError("VALIDATION", "unknown action", shared.ErrValidation)
	}
	return nil
}

// Values snapshots the action payload for history tracking.
func (a Action) Values() map[string]any {
	switch a.Kind {
	case KindFalsePositive:
		if a.FalsePositive == nil {
			return nil
		}
		return map[string]any{"reason": a.FalsePositive.Reason}
	case KindSecurityException:
		if a.SecurityException == nil {
			return nil
		}
		return map[string]any{
			"start_date": a.SecurityException.StartDate,
			"end_date":   a.SecurityException.EndDate,
			"reason":     a.SecurityException.Reason,
		}
	case KindProposedCloseDate:
		if a.ProposedCloseDate == nil {
			return nil
		}
		return map[string]any{
			"date":   a.ProposedCloseDate.Date,
			"reason": a.ProposedCloseDate.Reason,
		}
	default:
		return nil
	}
}

// actionFromValues rebuilds a typed payload from history values. Times may
// come back as primitive.DateTime after a bson round trip.
func actionFromValues(kind Kind, values map[string]any) Action {
	switch kind {
	case KindFalsePositive:
		return NewFalsePositive(stringValue(values["reason"]))
	case KindSecurityException:
		return NewSecurityException(
			timeValue(values["start_date"]),
			timeValue(values["end_date"]),
			stringValue(values["reason"]),
		)
	case KindProposedCloseDate:
		return NewProposedCloseDate(
			timeValue(values["date"]),
			stringValue(values["reason"]),
		)
	default:
		return Action{}
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func timeValue(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	default:
		return time.Time{}
	}
}
