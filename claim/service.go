package claim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

// OutboxWriter enqueues an integration message in the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, q db.Querier, topic, key string, payload map[string]any) error
}

type Service struct {
	pool        db.Pool
	repo        Repository
	outbox      OutboxWriter
	idGenerator func() string
	now         func() time.Time
	logger      *zap.Logger
}

type CreateParams struct {
	MemberID         string
	StewardID        *string
	Title            string
	Description      string
	Category         string
	Priority         Priority
	HasDocumentation bool
}

func NewService(pool db.Pool, repo Repository, outbox OutboxWriter) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		outbox:      outbox,
		idGenerator: func() string { return uuid.NewString() },
		now:         func() time.Time { return time.Now().UTC() },
		logger:      zap.NewNop(),
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Create files a new claim in the submitted status and starts its timeline.
func (s *Service) Create(ctx context.Context, params CreateParams) (Claim, error) {
	if params.MemberID == "" {
		return Claim{}, fmt.Errorf("%w: missing member id", ErrInvalidInput)
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return Claim{}, fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if params.Priority == "" {
		params.Priority = PriorityMedium
	}
	if !params.Priority.Valid() {
		return Claim{}, fmt.Errorf("%w: invalid priority %q", ErrInvalidInput, params.Priority)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Claim{}, fmt.Errorf("claim: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	c := Claim{
		ID:               s.idGenerator(),
		MemberID:         params.MemberID,
		StewardID:        params.StewardID,
		Title:            title,
		Description:      params.Description,
		Category:         params.Category,
		Priority:         params.Priority,
		Status:           lifecycle.StatusSubmitted,
		StatusChangedAt:  now,
		HasDocumentation: params.HasDocumentation,
	}

	created, err := s.repo.Create(ctx, tx, c)
	if err != nil {
		return Claim{}, err
	}

	member := created.MemberID
	if _, err := s.repo.AppendEvent(ctx, tx, Event{
		ClaimID:    created.ID,
		Type:       string(sla.EventSubmitted),
		ActorID:    &member,
		OccurredAt: now,
		Payload: map[string]any{
			"priority": created.Priority,
			"category": created.Category,
		},
	}); err != nil {
		return Claim{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"claim_id":  created.ID,
			"member_id": created.MemberID,
			"priority":  created.Priority,
			"status":    created.Status,
		}
		if err := s.outbox.Enqueue(ctx, tx, OutboxTopicClaimSubmitted, created.ID, payload); err != nil {
			return Claim{}, fmt.Errorf("claim: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Claim{}, fmt.Errorf("claim: commit tx: %w", err)
	}

	s.logger.Info("claim submitted", zap.String("claim_id", created.ID), zap.String("priority", string(created.Priority)))
	return created, nil
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

func (s *Service) Get(ctx context.Context, id string) (Claim, error) {
	return s.repo.Get(ctx, s.pool, id)
}

// Timeline returns the claim's events in occurrence order.
func (s *Service) Timeline(ctx context.Context, id string) ([]sla.Event, error) {
	if _, err := s.repo.Get(ctx, s.pool, id); err != nil {
		return nil, err
	}
	return s.repo.Timeline(ctx, s.pool, id)
}
