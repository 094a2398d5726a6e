package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
)

// Store is the persistence the relay needs.
type Store interface {
	Pending(ctx context.Context, q db.Querier, limit int) ([]Message, error)
	MarkProcessed(ctx context.Context, q db.Querier, id string) error
	// MarkFailed records a failed attempt and reports whether the message is
	// now dead.
	MarkFailed(ctx context.Context, q db.Querier, id string, maxAttempts int) (bool, error)
}

type PGStore struct {
	pool        *pgxpool.Pool
	idGenerator func() string
}

func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{
		pool:        pool,
		idGenerator: func() string { return uuid.NewString() },
	}
}

// Enqueue writes a pending message on q, normally the caller's transaction.
func (s *PGStore) Enqueue(ctx context.Context, q db.Querier, topic, key string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("outbox: empty topic")
	}
	if q == nil {
		q = s.pool
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}

	const insertSQL = `
INSERT INTO outbox (id, topic, key, payload)
VALUES ($1, $2, $3, $4);
`
	if _, err := q.Exec(ctx, insertSQL, s.idGenerator(), topic, key, body); err != nil {
		return fmt.Errorf("outbox: insert message: %w", err)
	}
	return nil
}

// Pending locks up to limit pending messages, skipping rows another relay
// already holds.
func (s *PGStore) Pending(ctx context.Context, q db.Querier, limit int) ([]Message, error) {
	const query = `
SELECT id, topic, key, payload, status, attempts, created_at, last_attempt
FROM outbox
WHERE status = 'pending'
ORDER BY created_at
FOR UPDATE SKIP LOCKED
LIMIT $1
`
	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: query pending: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Key, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt, &m.LastAttempt); err != nil {
			return nil, fmt.Errorf("outbox: scan pending: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate pending: %w", err)
	}
	return out, nil
}

func (s *PGStore) MarkProcessed(ctx context.Context, q db.Querier, id string) error {
	if _, err := q.Exec(ctx, `UPDATE outbox SET status='processed', attempts=attempts+1, last_attempt=now() WHERE id=$1`, id); err != nil {
		return fmt.Errorf("outbox: mark processed: %w", err)
	}
	return nil
}

func (s *PGStore) MarkFailed(ctx context.Context, q db.Querier, id string, maxAttempts int) (bool, error) {
	const query = `
UPDATE outbox
SET attempts = attempts + 1,
    last_attempt = now(),
    status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE status END
WHERE id = $1
RETURNING status
`
	var status Status
	if err := q.QueryRow(ctx, query, id, maxAttempts).Scan(&status); err != nil {
		return false, fmt.Errorf("outbox: mark failed: %w", err)
	}
	return status == StatusDead, nil
}
