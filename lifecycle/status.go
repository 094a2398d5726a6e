// Package lifecycle decides whether a claim may move from one status to
// another. The decision composes a transition table with four guard
// dimensions (role authority, minimum dwell time, unresolved critical
// signals, documentation) and attaches non-blocking SLA warnings.
package lifecycle

import "strings"

// Status is the lifecycle state of a grievance claim.
type Status string

const (
	StatusSubmitted            Status = "submitted"
	StatusUnderReview          Status = "under_review"
	StatusAssigned             Status = "assigned"
	StatusInvestigation        Status = "investigation"
	StatusPendingDocumentation Status = "pending_documentation"
	StatusResolved             Status = "resolved"
	StatusRejected             Status = "rejected"
	StatusClosed               Status = "closed"
)

var allStatuses = [...]Status{
	StatusSubmitted,
	StatusUnderReview,
	StatusAssigned,
	StatusInvestigation,
	StatusPendingDocumentation,
	StatusResolved,
	StatusRejected,
	StatusClosed,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses[:])
	return out
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusClosed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus normalises s; ok is false for unknown values.
func ParseStatus(s string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	return status, status.Valid()
}
