package claim

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

// SignalChecker reports whether a claim carries unresolved critical signals.
type SignalChecker interface {
	HasUnresolvedCritical(ctx context.Context, q db.Querier, claimID string) (bool, error)
}

// TransitionObserver is notified of every committed or rejected transition.
type TransitionObserver interface {
	ObserveTransition(from, to lifecycle.Status, res lifecycle.ValidationResult)
}

// StatusService applies guarded status transitions. The claim row is locked
// for the whole evaluation so concurrent requests for one claim serialise.
type StatusService struct {
	pool     db.TxBeginner
	repo     Repository
	guard    *lifecycle.Guard
	signals  SignalChecker
	outbox   OutboxWriter
	observer TransitionObserver
	now      func() time.Time
	logger   *zap.Logger
}

type TransitionParams struct {
	ClaimID                  string
	ActorID                  string
	ActorRole                auth.Role
	TargetStatus             lifecycle.Status
	HasRequiredDocumentation bool
	Notes                    string
}

func NewStatusService(pool db.TxBeginner, repo Repository, guard *lifecycle.Guard, signals SignalChecker, outbox OutboxWriter) *StatusService {
	return &StatusService{
		pool:    pool,
		repo:    repo,
		guard:   guard,
		signals: signals,
		outbox:  outbox,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  zap.NewNop(),
	}
}

func (s *StatusService) WithClock(now func() time.Time) *StatusService {
	s.now = now
	return s
}

func (s *StatusService) WithLogger(l *zap.Logger) *StatusService {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *StatusService) WithObserver(o TransitionObserver) *StatusService {
	s.observer = o
	return s
}

// Transition evaluates params and, when allowed, moves the claim. A rejected
// transition is reported in the result with a nil error.
func (s *StatusService) Transition(ctx context.Context, params TransitionParams) (lifecycle.ValidationResult, error) {
	if err := params.validate(); err != nil {
		return lifecycle.ValidationResult{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return lifecycle.ValidationResult{}, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	current, res, err := s.evaluate(ctx, tx, params, now, true)
	if err != nil {
		return lifecycle.ValidationResult{}, err
	}
	if !res.Allowed {
		s.observe(current.Status, params.TargetStatus, res)
		return res, nil
	}

	if _, err := s.repo.UpdateStatus(ctx, tx, params.ClaimID, params.TargetStatus, now); err != nil {
		return lifecycle.ValidationResult{}, err
	}

	payload := map[string]any{
		"previous_status": current.Status,
		"next_status":     params.TargetStatus,
		"sla_compliant":   res.Metadata.SLACompliant,
	}
	if len(res.Warnings) > 0 {
		payload["warnings"] = res.Warnings
	}
	if params.Notes != "" {
		payload["notes"] = params.Notes
	}
	var actor *string
	if params.ActorID != "" {
		actor = &params.ActorID
	}
	if _, err := s.repo.AppendEvent(ctx, tx, Event{
		ClaimID:    params.ClaimID,
		Type:       string(sla.EventStatusChanged),
		ActorID:    actor,
		Payload:    payload,
		OccurredAt: now,
	}); err != nil {
		return lifecycle.ValidationResult{}, err
	}

	if s.outbox != nil {
		outboxPayload := map[string]any{
			"claim_id":      params.ClaimID,
			"previous":      current.Status,
			"next":          params.TargetStatus,
			"actor_id":      params.ActorID,
			"sla_compliant": res.Metadata.SLACompliant,
		}
		if err := s.outbox.Enqueue(ctx, tx, OutboxTopicStatusChanged, params.ClaimID, outboxPayload); err != nil {
			return lifecycle.ValidationResult{}, fmt.Errorf("claim: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return lifecycle.ValidationResult{}, fmt.Errorf("claim: commit transition: %w", err)
	}

	s.observe(current.Status, params.TargetStatus, res)
	s.logger.Info("claim status changed",
		zap.String("claim_id", params.ClaimID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(params.TargetStatus)),
		zap.Bool("sla_compliant", res.Metadata.SLACompliant),
	)
	return res, nil
}

// Preview runs the same evaluation as Transition without writing anything.
func (s *StatusService) Preview(ctx context.Context, params TransitionParams) (lifecycle.ValidationResult, error) {
	if err := params.validate(); err != nil {
		return lifecycle.ValidationResult{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return lifecycle.ValidationResult{}, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, res, err := s.evaluate(ctx, tx, params, s.now(), false)
	return res, err
}

func (s *StatusService) evaluate(ctx context.Context, q db.Querier, params TransitionParams, now time.Time, lock bool) (Claim, lifecycle.ValidationResult, error) {
	var (
		current Claim
		err     error
	)
	if lock {
		current, err = s.repo.GetForUpdate(ctx, q, params.ClaimID)
	} else {
		current, err = s.repo.Get(ctx, q, params.ClaimID)
	}
	if err != nil {
		return Claim{}, lifecycle.ValidationResult{}, err
	}

	timeline, err := s.repo.Timeline(ctx, q, params.ClaimID)
	if err != nil {
		return Claim{}, lifecycle.ValidationResult{}, err
	}

	var critical bool
	if s.signals != nil {
		critical, err = s.signals.HasUnresolvedCritical(ctx, q, params.ClaimID)
		if err != nil {
			return Claim{}, lifecycle.ValidationResult{}, fmt.Errorf("claim: check signals: %w", err)
		}
	}

	res := s.guard.Validate(lifecycle.TransitionRequest{
		ClaimID:                      current.ID,
		CurrentStatus:                current.Status,
		TargetStatus:                 params.TargetStatus,
		UserID:                       params.ActorID,
		UserRole:                     params.ActorRole,
		Priority:                     string(current.Priority),
		StatusChangedAt:              current.StatusChangedAt,
		HasRequiredDocumentation:     params.HasRequiredDocumentation || current.HasDocumentation,
		Notes:                        params.Notes,
		HasUnresolvedCriticalSignals: critical,
		Timeline:                     timeline,
		Now:                          now,
	})
	return current, res, nil
}

func (s *StatusService) observe(from, to lifecycle.Status, res lifecycle.ValidationResult) {
	if s.observer != nil {
		s.observer.ObserveTransition(from, to, res)
	}
}

func (p TransitionParams) validate() error {
	if p.ClaimID == "" {
		return fmt.Errorf("%w: missing claim id", ErrInvalidInput)
	}
	if p.TargetStatus == "" {
		return fmt.Errorf("%w: missing target status", ErrInvalidInput)
	}
	return nil
}
