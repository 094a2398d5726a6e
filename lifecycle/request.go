package lifecycle

import (
	"time"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

// TransitionRequest carries the facts a guard needs to judge a status change.
// Callers compute the boolean flags; the guard never looks anything up.
type TransitionRequest struct {
	ClaimID       string
	CurrentStatus Status
	TargetStatus  Status
	UserID        string
	UserRole      auth.Role
	// Priority is informational and does not affect the decision.
	Priority string
	// StatusChangedAt is when the claim entered CurrentStatus. Leaving a
	// state with a minimum dwell is refused while it is zero.
	StatusChangedAt              time.Time
	HasRequiredDocumentation     bool
	Notes                        string
	HasUnresolvedCriticalSignals bool
	// Timeline is optional. When present the milestone SLAs are consulted
	// in addition to the time spent in the current state.
	Timeline []sla.Event
	// Now overrides the guard clock when set.
	Now time.Time
}

// Check names the guard that produced a rejection.
type Check string

const (
	CheckTerminal      Check = "terminal"
	CheckAdjacency     Check = "adjacency"
	CheckRole          Check = "role"
	CheckDwell         Check = "dwell"
	CheckSignals       Check = "critical_signals"
	CheckDocumentation Check = "documentation"
)

// ResultMetadata is attached once every blocking guard has passed.
type ResultMetadata struct {
	SLACompliant bool
}

// ValidationResult is the outcome of a guard evaluation. Reason and BlockedBy
// are set only when Allowed is false. Warnings, RequiredActions and Metadata
// are nil when nothing was computed for them.
type ValidationResult struct {
	Allowed         bool
	Reason          string
	BlockedBy       Check
	Warnings        []string
	RequiredActions []string
	Metadata        *ResultMetadata
}

func blocked(check Check, reason string, actions ...string) ValidationResult {
	res := ValidationResult{Allowed: false, Reason: reason, BlockedBy: check}
	if len(actions) > 0 {
		res.RequiredActions = actions
	}
	return res
}
