package claim

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/db"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

type memRepo struct {
	mu      sync.Mutex
	claims  map[string]Claim
	events  map[string][]Event
	keys    map[string]bool
	nextID  int64
	updates int
}

func newMemRepo() *memRepo {
	return &memRepo{
		claims: make(map[string]Claim),
		events: make(map[string][]Event),
		keys:   make(map[string]bool),
	}
}

func (r *memRepo) seed(c Claim, events ...Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claims[c.ID] = c
	for _, e := range events {
		r.nextID++
		e.ID = r.nextID
		e.ClaimID = c.ID
		r.events[c.ID] = append(r.events[c.ID], e)
	}
}

func (r *memRepo) Create(ctx context.Context, q db.Querier, c Claim) (Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.CreatedAt = c.StatusChangedAt
	c.UpdatedAt = c.StatusChangedAt
	r.claims[c.ID] = c
	return c, nil
}

func (r *memRepo) Get(ctx context.Context, q db.Querier, id string) (Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok {
		return Claim{}, ErrNotFound
	}
	return c, nil
}

func (r *memRepo) GetForUpdate(ctx context.Context, q db.Querier, id string) (Claim, error) {
	return r.Get(ctx, q, id)
}

func (r *memRepo) List(ctx context.Context, filters Filters) ([]Claim, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Claim{}
	for _, c := range r.claims {
		if filters.Status != "" && c.Status != filters.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memRepo) ListOpen(ctx context.Context) ([]Claim, error) {
	all, _, err := r.List(ctx, Filters{})
	if err != nil {
		return nil, err
	}
	open := all[:0]
	for _, c := range all {
		if !c.Status.IsTerminal() {
			open = append(open, c)
		}
	}
	return open, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, q db.Querier, id string, status lifecycle.Status, at time.Time) (Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok {
		return Claim{}, ErrNotFound
	}
	c.Status = status
	c.StatusChangedAt = at
	c.UpdatedAt = at
	r.claims[id] = c
	r.updates++
	return c, nil
}

func (r *memRepo) AppendEvent(ctx context.Context, q db.Querier, e Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.events[e.ClaimID] = append(r.events[e.ClaimID], e)
	return e, nil
}

func (r *memRepo) Timeline(ctx context.Context, q db.Querier, claimID string) ([]sla.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ToTimeline(r.events[claimID]), nil
}

func (r *memRepo) InsertIdempotencyKey(ctx context.Context, q db.Querier, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keys[key] {
		return ErrDuplicateIdempotencyKey
	}
	r.keys[key] = true
	return nil
}

func (r *memRepo) eventTypes(claimID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events[claimID]))
	for _, e := range r.events[claimID] {
		out = append(out, e.Type)
	}
	return out
}

type enqueued struct {
	topic   string
	key     string
	payload map[string]any
}

type fakeOutbox struct {
	messages []enqueued
	err      error
}

func (f *fakeOutbox) Enqueue(ctx context.Context, q db.Querier, topic, key string, payload map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, enqueued{topic: topic, key: key, payload: payload})
	return nil
}

type fakeSignals struct {
	critical bool
	err      error
}

func (f fakeSignals) HasUnresolvedCritical(ctx context.Context, q db.Querier, claimID string) (bool, error) {
	return f.critical, f.err
}

type observed struct {
	from, to lifecycle.Status
	allowed  bool
}

type fakeObserver struct {
	seen []observed
}

func (f *fakeObserver) ObserveTransition(from, to lifecycle.Status, res lifecycle.ValidationResult) {
	f.seen = append(f.seen, observed{from: from, to: to, allowed: res.Allowed})
}

type fakePool struct {
	txs []*fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakePool) last() *fakeTx {
	if len(f.txs) == 0 {
		return nil
	}
	return f.txs[len(f.txs)-1]
}

func (f *fakePool) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakePool) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
