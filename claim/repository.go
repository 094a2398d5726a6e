package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

var (
	ErrNotFound = errors.New("claim: not found")
	// ErrInvalidInput wraps every caller-side validation failure.
	ErrInvalidInput = errors.New("claim: invalid input")
	// ErrDuplicateIdempotencyKey signals the key was already used by an earlier request.
	ErrDuplicateIdempotencyKey = errors.New("claim: duplicate idempotency key")
)

type Repository interface {
	Create(ctx context.Context, q db.Querier, c Claim) (Claim, error)
	Get(ctx context.Context, q db.Querier, id string) (Claim, error)
	GetForUpdate(ctx context.Context, q db.Querier, id string) (Claim, error)
	List(ctx context.Context, filters Filters) ([]Claim, int, error)
	ListOpen(ctx context.Context) ([]Claim, error)
	UpdateStatus(ctx context.Context, q db.Querier, id string, status lifecycle.Status, at time.Time) (Claim, error)
	AppendEvent(ctx context.Context, q db.Querier, e Event) (Event, error)
	Timeline(ctx context.Context, q db.Querier, claimID string) ([]sla.Event, error)
	InsertIdempotencyKey(ctx context.Context, q db.Querier, key string) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const claimColumns = `id, member_id, steward_id, title, description, category, priority, status, status_changed_at, has_documentation, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, q db.Querier, c Claim) (Claim, error) {
	const query = `
        INSERT INTO claims (id, member_id, steward_id, title, description, category, priority, status, status_changed_at, has_documentation)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING ` + claimColumns

	row := q.QueryRow(ctx, query,
		c.ID,
		c.MemberID,
		c.StewardID,
		c.Title,
		c.Description,
		c.Category,
		c.Priority,
		c.Status,
		c.StatusChangedAt,
		c.HasDocumentation,
	)
	created, err := scanClaim(row)
	if err != nil {
		return Claim{}, fmt.Errorf("claim: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, q db.Querier, id string) (Claim, error) {
	return r.get(ctx, q, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
}

func (r *PGRepository) GetForUpdate(ctx context.Context, q db.Querier, id string) (Claim, error) {
	return r.get(ctx, q, `SELECT `+claimColumns+` FROM claims WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) get(ctx context.Context, q db.Querier, query, id string) (Claim, error) {
	c, err := scanClaim(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidText(err) {
			return Claim{}, ErrNotFound
		}
		return Claim{}, fmt.Errorf("claim: get: %w", err)
	}
	return c, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Claim, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}

	if filters.MemberID != "" {
		where = append(where, fmt.Sprintf("member_id=$%d", len(args)+1))
		args = append(args, filters.MemberID)
	}
	if filters.StewardID != "" {
		where = append(where, fmt.Sprintf("steward_id=$%d", len(args)+1))
		args = append(args, filters.StewardID)
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	if filters.Priority != "" {
		where = append(where, fmt.Sprintf("priority=$%d", len(args)+1))
		args = append(args, filters.Priority)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")

	sortOrder := strings.ToUpper(filters.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	limit := filters.PageSize
	offset := (filters.Page - 1) * filters.PageSize

	query := fmt.Sprintf(`SELECT %s FROM claims%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		claimColumns, whereClause, mapSortKey(filters.SortKey), sortOrder, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("claim: query list: %w", err)
	}
	defer rows.Close()

	list := []Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("claim: scan list: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("claim: iterate list: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM claims"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("claim: count list: %w", err)
	}

	return list, total, nil
}

// ListOpen returns every claim that has not reached a terminal status.
func (r *PGRepository) ListOpen(ctx context.Context) ([]Claim, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+claimColumns+` FROM claims WHERE status <> $1 ORDER BY created_at ASC`, lifecycle.StatusClosed)
	if err != nil {
		return nil, fmt.Errorf("claim: list open: %w", err)
	}
	defer rows.Close()

	out := make([]Claim, 0, 64)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("claim: scan open: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim: iterate open: %w", err)
	}
	return out, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, q db.Querier, id string, status lifecycle.Status, at time.Time) (Claim, error) {
	const query = `
		UPDATE claims
		SET status = $2,
		    status_changed_at = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + claimColumns

	c, err := scanClaim(q.QueryRow(ctx, query, id, status, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Claim{}, ErrNotFound
		}
		return Claim{}, fmt.Errorf("claim: update status: %w", err)
	}
	return c, nil
}

func (r *PGRepository) AppendEvent(ctx context.Context, q db.Querier, e Event) (Event, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("claim: marshal event payload: %w", err)
	}

	const query = `
INSERT INTO claim_events (claim_id, type, actor_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id;
`
	if err := q.QueryRow(ctx, query, e.ClaimID, e.Type, e.ActorID, payloadBytes, e.OccurredAt).Scan(&e.ID); err != nil {
		return Event{}, fmt.Errorf("claim: insert event: %w", err)
	}
	return e, nil
}

// Timeline returns the claim's events in occurrence order, shaped for SLA
// assessment.
func (r *PGRepository) Timeline(ctx context.Context, q db.Querier, claimID string) ([]sla.Event, error) {
	const query = `
SELECT id, claim_id, type, actor_id, payload, occurred_at
FROM claim_events
WHERE claim_id = $1
ORDER BY occurred_at ASC, id ASC
`
	rows, err := q.Query(ctx, query, claimID)
	if err != nil {
		return nil, fmt.Errorf("claim: query timeline: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, 8)
	for rows.Next() {
		var (
			e       Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.ClaimID, &e.Type, &e.ActorID, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("claim: scan timeline: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("claim: decode event %d payload: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim: iterate timeline: %w", err)
	}
	return ToTimeline(events), nil
}

// InsertIdempotencyKey reserves key inside the active transaction.
func (r *PGRepository) InsertIdempotencyKey(ctx context.Context, q db.Querier, key string) error {
	if key == "" {
		return fmt.Errorf("claim: empty idempotency key")
	}
	if _, err := q.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("claim: insert idempotency key: %w", err)
	}
	return nil
}

func scanClaim(row pgx.Row) (Claim, error) {
	var c Claim
	err := row.Scan(
		&c.ID,
		&c.MemberID,
		&c.StewardID,
		&c.Title,
		&c.Description,
		&c.Category,
		&c.Priority,
		&c.Status,
		&c.StatusChangedAt,
		&c.HasDocumentation,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func mapSortKey(key string) string {
	switch key {
	case "priority":
		return "priority"
	case "status":
		return "status"
	case "statusChangedAt":
		return "status_changed_at"
	case "updatedAt":
		return "updated_at"
	case "createdAt":
		fallthrough
	default:
		return "created_at"
	}
}
