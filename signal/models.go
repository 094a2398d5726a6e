// Package signal stores risk signals raised against claims by the external
// detection process and answers whether any critical ones are still open.
package signal

import "time"

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Status represents the lifecycle of a signal record.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Record mirrors the claim_signals table.
type Record struct {
	ID          string
	ClaimID     string
	Kind        string
	Severity    Severity
	Description string
	Status      Status
	DetectedAt  time.Time
	ResolvedAt  *time.Time
	ResolvedBy  *string
}

type CreateParams struct {
	ClaimID     string
	Kind        string
	Severity    Severity
	Description string
}
