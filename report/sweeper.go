package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/claim"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

// KeyReserver reserves idempotency keys; claim.Repository implements it.
type KeyReserver interface {
	InsertIdempotencyKey(ctx context.Context, q db.Querier, key string) error
}

// SweepObserver receives the outcome of each sweep.
type SweepObserver interface {
	ObserveSweep(counts map[sla.Status]int, skipped int, took time.Duration)
}

// Sweeper periodically assesses every open claim, publishes gauges, and
// enqueues one claim.sla_breached message per claim and breached milestone set.
type Sweeper struct {
	service  *Service
	pool     db.TxBeginner
	keys     KeyReserver
	outbox   claim.OutboxWriter
	observer SweepObserver
	timeout  time.Duration
	cron     *cron.Cron
	logger   *zap.Logger
}

func NewSweeper(service *Service, pool db.TxBeginner, keys KeyReserver, outbox claim.OutboxWriter, observer SweepObserver, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		service:  service,
		pool:     pool,
		keys:     keys,
		outbox:   outbox,
		observer: observer,
		timeout:  5 * time.Minute,
		logger:   logger,
	}
}

// Start schedules the sweep. schedule uses six fields, seconds first.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger))
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if _, err := s.Sweep(runCtx); err != nil {
			s.logger.Error("sla sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("report: schedule sweep %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("sla sweep scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep runs one pass and returns the number of breach notifications queued.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	started := time.Now()
	rep, err := s.service.Assess(ctx)
	if err != nil {
		return 0, err
	}
	if s.observer != nil {
		s.observer.ObserveSweep(rep.Counts, len(rep.Skipped), time.Since(started))
	}

	queued := 0
	for _, a := range rep.Breached {
		ok, err := s.notifyBreach(ctx, a, rep.GeneratedAt)
		if err != nil {
			return queued, err
		}
		if ok {
			queued++
		}
	}

	s.logger.Info("sla sweep complete",
		zap.Int("assessed", len(rep.Assessments)),
		zap.Int("at_risk", len(rep.AtRisk)),
		zap.Int("breached", len(rep.Breached)),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Int("notified", queued),
	)
	return queued, nil
}

func (s *Sweeper) notifyBreach(ctx context.Context, a sla.CaseAssessment, at time.Time) (bool, error) {
	milestones := breachedMilestones(a, s.service.calc.Windows())
	if len(milestones) == 0 || s.outbox == nil {
		return false, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("report: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	key := "sla_breached:" + a.CaseID + ":" + strings.Join(milestones, ",")
	if err := s.keys.InsertIdempotencyKey(ctx, tx, key); err != nil {
		if errors.Is(err, claim.ErrDuplicateIdempotencyKey) {
			return false, nil
		}
		return false, err
	}

	payload := map[string]any{
		"claim_id":    a.CaseID,
		"milestones":  milestones,
		"assessed_at": at.UTC(),
	}
	if err := s.outbox.Enqueue(ctx, tx, claim.OutboxTopicSLABreached, a.CaseID, payload); err != nil {
		return false, fmt.Errorf("report: enqueue breach: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("report: commit breach: %w", err)
	}
	return true, nil
}

func breachedMilestones(a sla.CaseAssessment, w sla.Windows) []string {
	var out []string
	add := func(name string, m *sla.Metric) {
		if m != nil && m.Status == sla.StatusBreached {
			out = append(out, name)
		}
	}
	add(w.Acknowledgment.Name, &a.Acknowledgment)
	add(w.FirstResponse.Name, a.FirstResponse)
	add(w.Investigation.Name, a.Investigation)
	sort.Strings(out)
	return out
}
