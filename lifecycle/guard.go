package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

var ErrInvalidRules = errors.New("lifecycle: invalid rules")

const (
	actionResolveSignals = "Resolve all CRITICAL severity signals"
	actionAttachDocs     = "Attach the required documentation or add detailed notes explaining the outcome"
)

// Guard evaluates transition requests against an immutable rule table. It
// holds no mutable state and is safe for concurrent use.
type Guard struct {
	rules  Rules
	calc   *sla.Calculator
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Guard)

// WithCalculator replaces the SLA calculator used for milestone advisories.
func WithCalculator(c *sla.Calculator) Option {
	return func(g *Guard) {
		if c != nil {
			g.calc = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard validates rules and returns a guard that owns a private copy.
func NewGuard(rules Rules, opts ...Option) (*Guard, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRules, err)
	}
	g := &Guard{
		rules:  rules.Clone(),
		calc:   sla.NewCalculator(sla.DefaultWindows()),
		now:    func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Rules returns a copy of the table the guard enforces.
func (g *Guard) Rules() Rules {
	return g.rules.Clone()
}

// Validate decides whether req may proceed. Business rejections are
// reported in the result, never as errors.
func (g *Guard) Validate(req TransitionRequest) ValidationResult {
	now := req.Now
	if now.IsZero() {
		now = g.now()
	}

	res := g.evaluate(req, now)
	if res.Allowed {
		g.logger.Debug("transition allowed",
			zap.String("claim_id", req.ClaimID),
			zap.String("from", string(req.CurrentStatus)),
			zap.String("to", string(req.TargetStatus)),
			zap.Int("warnings", len(res.Warnings)),
		)
	} else {
		g.logger.Info("transition blocked",
			zap.String("claim_id", req.ClaimID),
			zap.String("from", string(req.CurrentStatus)),
			zap.String("to", string(req.TargetStatus)),
			zap.String("check", string(res.BlockedBy)),
			zap.String("reason", res.Reason),
		)
	}
	return res
}

func (g *Guard) evaluate(req TransitionRequest, now time.Time) ValidationResult {
	from, to := req.CurrentStatus, req.TargetStatus

	if from.IsTerminal() {
		return blocked(CheckTerminal,
			fmt.Sprintf("claim is %s; closed claims cannot be reopened or transitioned", from))
	}

	state, known := g.rules.States[from]
	if !known {
		return blocked(CheckAdjacency, fmt.Sprintf("invalid transition: unknown current status %q", from))
	}
	edge, ok := g.rules.Edge(from, to)
	if !ok {
		return blocked(CheckAdjacency,
			fmt.Sprintf("invalid transition from %s to %s", from, to),
			"Choose one of: "+joinStatuses(g.rules.Targets(from)))
	}

	if edge.RequiresRole != "" && !req.UserRole.AtLeast(edge.RequiresRole) {
		role := string(req.UserRole)
		if role == "" {
			role = "unknown"
		}
		return blocked(CheckRole,
			fmt.Sprintf("role %s is not authorized to move a claim from %s to %s; requires %s", role, from, to, edge.RequiresRole),
			fmt.Sprintf("Ask a user with the %s role to perform this transition", edge.RequiresRole))
	}

	if state.MinDwell > 0 {
		if req.StatusChangedAt.IsZero() {
			return blocked(CheckDwell,
				fmt.Sprintf("claim must remain in %s for a minimum duration of %s; time of entry is unknown",
					from, formatHours(state.MinDwell)))
		}
		if elapsed := now.Sub(req.StatusChangedAt); elapsed < state.MinDwell {
			return blocked(CheckDwell,
				fmt.Sprintf("claim must remain in %s for a minimum duration of %s (elapsed %s)",
					from, formatHours(state.MinDwell), formatHours(elapsed)),
				fmt.Sprintf("Retry after %s", req.StatusChangedAt.Add(state.MinDwell).UTC().Format(time.RFC3339)))
		}
	}

	if edge.BlockedByCriticalSignals && req.HasUnresolvedCriticalSignals {
		return blocked(CheckSignals,
			fmt.Sprintf("claim has unresolved critical signals; cannot move to %s", to),
			actionResolveSignals)
	}

	if edge.RequiresDocumentation && !req.HasRequiredDocumentation &&
		!DetailedNotes(req.Notes, g.rules.MinNotesLength, g.rules.MinNotesWords) {
		return blocked(CheckDocumentation,
			fmt.Sprintf("required documentation is missing for transition to %s", to),
			actionAttachDocs)
	}

	warnings, compliant := g.advise(req, state, now)
	res := ValidationResult{
		Allowed:  true,
		Metadata: &ResultMetadata{SLACompliant: compliant},
	}
	if len(warnings) > 0 {
		res.Warnings = warnings
	}
	return res
}

// advise runs the SLA clocks. It only ever produces warnings.
func (g *Guard) advise(req TransitionRequest, state StateRules, now time.Time) ([]string, bool) {
	var warnings []string
	compliant := true

	if state.SLAWindow.Days > 0 && !req.StatusChangedAt.IsZero() {
		m := sla.Assess(state.SLAWindow, req.StatusChangedAt, nil, now)
		if m.Status != sla.StatusWithinSLA {
			compliant = false
			warnings = append(warnings, fmt.Sprintf("SLA %s: claim has spent %.1f of %g business days in %s",
				m.Status, m.DaysElapsed, m.DaysAllowed, req.CurrentStatus))
		}
	}

	if len(req.Timeline) > 0 {
		assessment, err := g.calc.CaseStatus(req.ClaimID, req.Timeline, now)
		switch {
		case err != nil:
			g.logger.Warn("sla advisory skipped", zap.String("claim_id", req.ClaimID), zap.Error(err))
		case assessment.OverallStatus != sla.StatusWithinSLA:
			compliant = false
			warnings = append(warnings, fmt.Sprintf("SLA %s: milestones out of compliance: %s",
				assessment.OverallStatus, strings.Join(assessment.CriticalSLAs, ", ")))
		}
	}
	return warnings, compliant
}

func joinStatuses(statuses []Status) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

func formatHours(d time.Duration) string {
	return fmt.Sprintf("%.1fh", d.Hours())
}
