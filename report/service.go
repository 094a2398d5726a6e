// Package report assesses SLA compliance across open claims.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/claim"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

// ClaimSource is the read side of the claim repository.
type ClaimSource interface {
	ListOpen(ctx context.Context) ([]claim.Claim, error)
	Get(ctx context.Context, q db.Querier, id string) (claim.Claim, error)
	Timeline(ctx context.Context, q db.Querier, claimID string) ([]sla.Event, error)
}

// Report is one pass over the open claims. AtRisk and Breached keep the
// order of Assessments.
type Report struct {
	GeneratedAt time.Time
	Assessments []sla.CaseAssessment
	AtRisk      []sla.CaseAssessment
	Breached    []sla.CaseAssessment
	Counts      map[sla.Status]int
	// Skipped lists claims whose timeline could not be assessed.
	Skipped []string
}

type Service struct {
	source      ClaimSource
	reader      db.Querier
	calc        *sla.Calculator
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
}

func NewService(source ClaimSource, reader db.Querier, calc *sla.Calculator) *Service {
	if calc == nil {
		calc = sla.NewCalculator(sla.DefaultWindows())
	}
	return &Service{
		source:      source,
		reader:      reader,
		calc:        calc,
		concurrency: 8,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      zap.NewNop(),
	}
}

func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
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

// ClaimStatus assesses a single claim.
func (s *Service) ClaimStatus(ctx context.Context, claimID string) (sla.CaseAssessment, error) {
	if _, err := s.source.Get(ctx, s.reader, claimID); err != nil {
		return sla.CaseAssessment{}, err
	}
	timeline, err := s.source.Timeline(ctx, s.reader, claimID)
	if err != nil {
		return sla.CaseAssessment{}, err
	}
	return s.calc.CaseStatus(claimID, timeline, s.now())
}

// Assess loads every open claim's timeline concurrently and assesses it
// against a single clock reading.
func (s *Service) Assess(ctx context.Context) (Report, error) {
	now := s.now()
	claims, err := s.source.ListOpen(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("report: list open claims: %w", err)
	}

	assessments := make([]*sla.CaseAssessment, len(claims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range claims {
		i, id := i, c.ID
		g.Go(func() error {
			timeline, err := s.source.Timeline(gctx, s.reader, id)
			if err != nil {
				return fmt.Errorf("report: timeline for %s: %w", id, err)
			}
			a, err := s.calc.CaseStatus(id, timeline, now)
			if err != nil {
				if errors.Is(err, sla.ErrMissingSubmissionEvent) || errors.Is(err, sla.ErrDuplicateSubmissionEvent) {
					s.logger.Warn("claim skipped from sla report", zap.String("claim_id", id), zap.Error(err))
					return nil
				}
				return err
			}
			assessments[i] = &a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	out := Report{
		GeneratedAt: now,
		Assessments: make([]sla.CaseAssessment, 0, len(claims)),
		Counts:      make(map[sla.Status]int, 3),
		Skipped:     []string{},
	}
	for i, a := range assessments {
		if a == nil {
			out.Skipped = append(out.Skipped, claims[i].ID)
			continue
		}
		out.Assessments = append(out.Assessments, *a)
		out.Counts[a.OverallStatus]++
	}
	out.AtRisk = sla.AtRiskCases(out.Assessments)
	out.Breached = sla.BreachedCases(out.Assessments)
	return out, nil
}
