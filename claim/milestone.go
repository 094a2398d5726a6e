package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

var (
	ErrInvalidMilestone    = errors.New("claim: invalid milestone type")
	ErrMilestoneOutOfOrder = errors.New("claim: milestone prerequisite missing")
	ErrMilestoneRecorded   = errors.New("claim: milestone already recorded")
)

type MilestoneRequest struct {
	ClaimID        string
	Type           sla.EventType
	ActorID        string
	IdempotencyKey string
	// OccurredAt defaults to the service clock. It may not lie in the future
	// or before the event the milestone's clock counts from.
	OccurredAt time.Time
	Payload    map[string]any
}

// MilestoneService records SLA milestones on a claim's timeline.
type MilestoneService struct {
	pool   db.TxBeginner
	repo   Repository
	outbox OutboxWriter
	now    func() time.Time
	logger *zap.Logger
}

func NewMilestoneService(pool db.TxBeginner, repo Repository, outbox OutboxWriter) *MilestoneService {
	return &MilestoneService{
		pool:   pool,
		repo:   repo,
		outbox: outbox,
		now:    func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
}

func (s *MilestoneService) WithClock(now func() time.Time) *MilestoneService {
	s.now = now
	return s
}

func (s *MilestoneService) WithLogger(l *zap.Logger) *MilestoneService {
	if l != nil {
		s.logger = l
	}
	return s
}

// Record appends the milestone. It returns false with a nil error when the
// idempotency key was already used, so retried requests are harmless.
func (s *MilestoneService) Record(ctx context.Context, req MilestoneRequest) (bool, error) {
	if req.IdempotencyKey == "" {
		return false, fmt.Errorf("%w: missing idempotency key", ErrInvalidInput)
	}
	if req.ClaimID == "" {
		return false, fmt.Errorf("%w: missing claim id", ErrInvalidInput)
	}
	if !IsMilestone(req.Type) {
		return false, fmt.Errorf("%w: %q", ErrInvalidMilestone, req.Type)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.InsertIdempotencyKey(ctx, tx, req.IdempotencyKey); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return false, nil
		}
		return false, err
	}

	if _, err := s.repo.GetForUpdate(ctx, tx, req.ClaimID); err != nil {
		return false, err
	}

	timeline, err := s.repo.Timeline(ctx, tx, req.ClaimID)
	if err != nil {
		return false, err
	}
	if hasEvent(timeline, req.Type) {
		return false, fmt.Errorf("%w: %s", ErrMilestoneRecorded, req.Type)
	}
	if pre, ok := milestonePrerequisite(req.Type); ok && !hasEvent(timeline, pre) {
		return false, fmt.Errorf("%w: %s requires %s", ErrMilestoneOutOfOrder, req.Type, pre)
	}

	now := s.now()
	at := req.OccurredAt
	if at.IsZero() {
		at = now
	}
	if at.After(now) {
		return false, fmt.Errorf("%w: %s occurred_at %s is in the future", ErrInvalidInput, req.Type, at.UTC().Format(time.RFC3339))
	}
	start := clockStart(req.Type)
	if since, ok := earliest(timeline, start); ok && at.Before(since) {
		return false, fmt.Errorf("%w: %s occurred_at %s precedes %s", ErrInvalidInput, req.Type, at.UTC().Format(time.RFC3339), start)
	}
	var actor *string
	if req.ActorID != "" {
		actor = &req.ActorID
	}
	if _, err := s.repo.AppendEvent(ctx, tx, Event{
		ClaimID:    req.ClaimID,
		Type:       string(req.Type),
		ActorID:    actor,
		Payload:    req.Payload,
		OccurredAt: at,
	}); err != nil {
		return false, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"claim_id":    req.ClaimID,
			"milestone":   req.Type,
			"occurred_at": at.UTC(),
		}
		if err := s.outbox.Enqueue(ctx, tx, OutboxTopicMilestoneRecorded, req.ClaimID, payload); err != nil {
			return false, fmt.Errorf("claim: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("claim: commit milestone: %w", err)
	}

	s.logger.Info("claim milestone recorded", zap.String("claim_id", req.ClaimID), zap.String("milestone", string(req.Type)))
	return true, nil
}
