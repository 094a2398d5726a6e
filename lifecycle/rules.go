package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

// Edge is one permitted transition out of a state together with the guards
// that apply to it.
type Edge struct {
	To Status
	// RequiresRole is the minimum role allowed to take the edge; empty means any.
	RequiresRole             auth.Role
	RequiresDocumentation    bool
	BlockedByCriticalSignals bool
}

// StateRules describes everything that applies when leaving a state.
type StateRules struct {
	Edges []Edge
	// MinDwell applies to every edge leaving the state.
	MinDwell time.Duration
	// SLAWindow is the advisory budget for time spent in the state. A window
	// with zero days disables the advisory clock.
	SLAWindow sla.Window
}

// Rules is the full transition table. Build it once, validate it, and hand it
// to NewGuard; the guard keeps its own copy.
type Rules struct {
	States map[Status]StateRules
	// Notes can stand in for missing documentation when they carry at least
	// this many characters and words.
	MinNotesLength int
	MinNotesWords  int
}

const (
	DefaultMinNotesLength = 50
	DefaultMinNotesWords  = 8
)

func stateWindow(status Status, days float64) sla.Window {
	return sla.Window{
		Name:        string(status),
		Days:        days,
		Description: "Move the claim out of " + string(status) + " within %s business days",
	}
}

// DefaultRules returns the standard grievance lifecycle.
func DefaultRules() Rules {
	return Rules{
		MinNotesLength: DefaultMinNotesLength,
		MinNotesWords:  DefaultMinNotesWords,
		States: map[Status]StateRules{
			StatusSubmitted: {
				Edges: []Edge{
					{To: StatusUnderReview},
					{To: StatusRejected, RequiresRole: auth.RoleSteward, RequiresDocumentation: true},
				},
				SLAWindow: stateWindow(StatusSubmitted, 2),
			},
			StatusUnderReview: {
				Edges: []Edge{
					{To: StatusAssigned},
					{To: StatusInvestigation},
					{To: StatusPendingDocumentation},
					{To: StatusRejected, RequiresRole: auth.RoleSteward, RequiresDocumentation: true},
				},
				MinDwell:  24 * time.Hour,
				SLAWindow: stateWindow(StatusUnderReview, 5),
			},
			StatusAssigned: {
				Edges: []Edge{
					{To: StatusInvestigation},
					{To: StatusPendingDocumentation},
					{To: StatusRejected, RequiresRole: auth.RoleSteward, RequiresDocumentation: true},
				},
				SLAWindow: stateWindow(StatusAssigned, 5),
			},
			StatusInvestigation: {
				Edges: []Edge{
					{To: StatusResolved, RequiresDocumentation: true, BlockedByCriticalSignals: true},
					{To: StatusPendingDocumentation},
					{To: StatusRejected, RequiresRole: auth.RoleSteward, RequiresDocumentation: true},
				},
				MinDwell:  72 * time.Hour,
				SLAWindow: stateWindow(StatusInvestigation, 10),
			},
			StatusPendingDocumentation: {
				Edges: []Edge{
					{To: StatusUnderReview},
					{To: StatusInvestigation},
					{To: StatusRejected, RequiresRole: auth.RoleSteward, RequiresDocumentation: true},
				},
				SLAWindow: stateWindow(StatusPendingDocumentation, 10),
			},
			StatusResolved: {
				Edges: []Edge{
					{To: StatusClosed, RequiresRole: auth.RoleAdmin, BlockedByCriticalSignals: true},
					{To: StatusInvestigation},
				},
				MinDwell: 168 * time.Hour,
			},
			StatusRejected: {
				Edges: []Edge{
					{To: StatusClosed, RequiresRole: auth.RoleAdmin, BlockedByCriticalSignals: true},
					{To: StatusUnderReview, RequiresRole: auth.RoleSteward},
				},
			},
			StatusClosed: {},
		},
	}
}

// Validate checks that the table covers every status, that closed stays
// terminal and that every edge points at a known status.
func (r Rules) Validate() error {
	var errs []error
	for _, status := range allStatuses {
		if _, ok := r.States[status]; !ok {
			errs = append(errs, fmt.Errorf("lifecycle: no rules for status %s", status))
		}
	}
	for from, state := range r.States {
		if !from.Valid() {
			errs = append(errs, fmt.Errorf("lifecycle: rules for unknown status %q", from))
		}
		if from.IsTerminal() && len(state.Edges) > 0 {
			errs = append(errs, fmt.Errorf("lifecycle: terminal status %s has outgoing edges", from))
		}
		if state.MinDwell < 0 {
			errs = append(errs, fmt.Errorf("lifecycle: negative dwell for %s", from))
		}
		if d := state.SLAWindow.Days; d < 0 || d > sla.MaxWindowDays {
			errs = append(errs, fmt.Errorf("lifecycle: sla window for %s must be between 0 and %d days", from, sla.MaxWindowDays))
		}
		seen := make(map[Status]bool, len(state.Edges))
		for _, e := range state.Edges {
			if !e.To.Valid() {
				errs = append(errs, fmt.Errorf("lifecycle: edge %s -> %q targets unknown status", from, e.To))
			}
			if seen[e.To] {
				errs = append(errs, fmt.Errorf("lifecycle: duplicate edge %s -> %s", from, e.To))
			}
			seen[e.To] = true
			if e.RequiresRole != "" && e.RequiresRole.Rank() == 0 {
				errs = append(errs, fmt.Errorf("lifecycle: edge %s -> %s requires unknown role %q", from, e.To, e.RequiresRole))
			}
		}
	}
	if r.MinNotesLength < 0 || r.MinNotesWords < 0 {
		errs = append(errs, errors.New("lifecycle: negative notes threshold"))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy so callers can adjust a table without touching
// one already handed to a guard.
func (r Rules) Clone() Rules {
	out := Rules{
		States:         make(map[Status]StateRules, len(r.States)),
		MinNotesLength: r.MinNotesLength,
		MinNotesWords:  r.MinNotesWords,
	}
	for status, state := range r.States {
		edges := make([]Edge, len(state.Edges))
		copy(edges, state.Edges)
		state.Edges = edges
		out.States[status] = state
	}
	return out
}

// Edge looks up the edge from -> to.
func (r Rules) Edge(from, to Status) (Edge, bool) {
	for _, e := range r.States[from].Edges {
		if e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// Targets lists the statuses reachable from from, in table order.
func (r Rules) Targets(from Status) []Status {
	edges := r.States[from].Edges
	out := make([]Status, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.To)
	}
	return out
}

// SetEdges replaces every edge leaving from.
func (r *Rules) SetEdges(from Status, edges []Edge) {
	state := r.States[from]
	state.Edges = append([]Edge(nil), edges...)
	r.States[from] = state
}

// SetMinDwell changes the dwell requirement for leaving from.
func (r *Rules) SetMinDwell(from Status, d time.Duration) {
	state := r.States[from]
	state.MinDwell = d
	r.States[from] = state
}

// SetSLAWindowDays changes the advisory budget for time spent in status.
func (r *Rules) SetSLAWindowDays(status Status, days float64) {
	state := r.States[status]
	if state.SLAWindow.Name == "" {
		state.SLAWindow = stateWindow(status, days)
	} else {
		state.SLAWindow.Days = days
	}
	r.States[status] = state
}

// SetRequiredRole sets the minimum role on every edge entering to.
func (r *Rules) SetRequiredRole(to Status, role auth.Role) {
	for from, state := range r.States {
		for i := range state.Edges {
			if state.Edges[i].To == to {
				state.Edges[i].RequiresRole = role
			}
		}
		r.States[from] = state
	}
}
