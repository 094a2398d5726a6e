package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
)

// Publisher delivers a message to the outside world.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// RelayObserver receives per-message delivery outcomes.
type RelayObserver interface {
	ObserveOutbox(topic string, published bool)
}

type RelayOptions struct {
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
}

// Relay moves pending messages to a Publisher. Several relays may run
// against one database; SKIP LOCKED keeps them off each other's rows.
type Relay struct {
	pool      db.TxBeginner
	store     Store
	publisher Publisher
	opts      RelayOptions
	observer  RelayObserver
	logger    *zap.Logger
}

func NewRelay(pool db.TxBeginner, store Store, publisher Publisher, opts RelayOptions) *Relay {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Relay{
		pool:      pool,
		store:     store,
		publisher: publisher,
		opts:      opts,
		logger:    zap.NewNop(),
	}
}

func (r *Relay) WithLogger(l *zap.Logger) *Relay {
	if l != nil {
		r.logger = l
	}
	return r
}

func (r *Relay) WithObserver(o RelayObserver) *Relay {
	r.observer = o
	return r
}

// RunOnce relays one batch and returns how many messages were published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	msgs, err := r.store.Pending(ctx, tx, r.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, msg := range msgs {
		if err := r.publisher.Publish(ctx, msg); err != nil {
			dead, markErr := r.store.MarkFailed(ctx, tx, msg.ID, r.opts.MaxAttempts)
			if markErr != nil {
				return 0, markErr
			}
			fields := []zap.Field{
				zap.String("outbox_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts+1),
				zap.Error(err),
			}
			if dead {
				r.logger.Error("outbox message dead", fields...)
			} else {
				r.logger.Warn("outbox publish failed", fields...)
			}
			r.observe(msg.Topic, false)
			continue
		}
		if err := r.store.MarkProcessed(ctx, tx, msg.ID); err != nil {
			return 0, err
		}
		published++
		r.observe(msg.Topic, true)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("outbox: commit relay batch: %w", err)
	}
	return published, nil
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll.
func (r *Relay) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		n, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("outbox relay batch failed", zap.Error(err))
		}
		next := r.opts.PollInterval
		if err == nil && n == r.opts.BatchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

func (r *Relay) observe(topic string, ok bool) {
	if r.observer != nil {
		r.observer.ObserveOutbox(topic, ok)
	}
}
