package signal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
)

var (
	ErrNotFound  = errors.New("signal: not found")
	ErrBadStatus = errors.New("signal: already resolved")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const signalColumns = `id, claim_id, kind, severity, description, status, detected_at, resolved_at, resolved_by`

func (r *Repository) List(ctx context.Context, claimID string, onlyOpen bool) ([]Record, error) {
	query := `SELECT ` + signalColumns + ` FROM claim_signals WHERE claim_id = $1`
	if onlyOpen {
		query += ` AND status = 'open'`
	}
	query += ` ORDER BY detected_at DESC`

	rows, err := r.pool.Query(ctx, query, claimID)
	if err != nil {
		return nil, fmt.Errorf("signal: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("signal: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("signal: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) Create(ctx context.Context, params CreateParams) (Record, error) {
	const query = `
		INSERT INTO claim_signals (claim_id, kind, severity, description, status)
		SELECT c.id, $2, $3, $4, 'open'
		FROM claims c
		WHERE c.id = $1
		RETURNING ` + signalColumns

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, params.ClaimID, params.Kind, params.Severity, params.Description))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidText(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("signal: create: %w", err)
	}
	return rec, nil
}

func (r *Repository) Resolve(ctx context.Context, signalID, actorID string) (Record, error) {
	const query = `
		UPDATE claim_signals
		SET status = 'resolved',
		    resolved_at = now(),
		    resolved_by = NULLIF($2, '')::uuid
		WHERE id = $1
		  AND status <> 'resolved'
		RETURNING ` + signalColumns

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, signalID, actorID))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("signal: resolve: %w", err)
	}

	var status Status
	if err := r.pool.QueryRow(ctx, `SELECT status FROM claim_signals WHERE id = $1`, signalID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("signal: resolve fetch: %w", err)
	}
	return Record{}, ErrBadStatus
}

// HasUnresolvedCritical runs on q so a caller holding the claim lock sees a
// consistent answer.
func (r *Repository) HasUnresolvedCritical(ctx context.Context, q db.Querier, claimID string) (bool, error) {
	if q == nil {
		q = r.pool
	}
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM claim_signals
			WHERE claim_id = $1 AND severity = 'critical' AND status = 'open'
		)`
	var exists bool
	if err := q.QueryRow(ctx, query, claimID).Scan(&exists); err != nil {
		return false, fmt.Errorf("signal: check critical: %w", err)
	}
	return exists, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ClaimID, &rec.Kind, &rec.Severity, &rec.Description, &rec.Status, &rec.DetectedAt, &rec.ResolvedAt, &rec.ResolvedBy)
	return rec, err
}
