package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/claim"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/outbox"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/report"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/signal"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

// detailedNotes clears the documentation guard through the notes path.
const detailedNotes = "Grievance meeting held with the supervisor and two witnesses; written statements are attached to the file."

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func pause(minMs, jitterMs int) {
	time.Sleep(time.Duration(minMs+rand.Intn(jitterMs)) * time.Millisecond)
}

// tolerable reports errors the chaos actor provokes by killing backends.
// Invalid input is always a bug in the actor.
func tolerable(ctx context.Context, err error) bool {
	return ctx.Err() != nil || !errors.Is(err, claim.ErrInvalidInput)
}

// Transitioner races other transitioners over the same claims, picking a
// random legal or illegal target each time. Blocked results are expected.
func Transitioner(ctx context.Context, svc *claim.StatusService, claimIDs []string, stop <-chan struct{}) error {
	statuses := lifecycle.AllStatuses()
	roles := []auth.Role{auth.RoleMember, auth.RoleSteward, auth.RoleAdmin}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := claimIDs[rand.Intn(len(claimIDs))]
		target := statuses[rand.Intn(len(statuses))]
		_, err := svc.Transition(ctx, claim.TransitionParams{
			ClaimID:      id,
			ActorID:      fmt.Sprintf("actor-%d", rand.Intn(4)),
			ActorRole:    roles[rand.Intn(len(roles))],
			TargetStatus: target,
			Notes:        detailedNotes,
		})
		if err != nil && !tolerable(ctx, err) {
			return fmt.Errorf("transition %s to %s: %w", id, target, err)
		}
		pause(5, 20)
	}
}

// MilestoneRecorder records milestones with a small key space so that retries
// and out-of-order requests collide.
func MilestoneRecorder(ctx context.Context, svc *claim.MilestoneService, claimIDs []string, stop <-chan struct{}) error {
	types := []sla.EventType{sla.EventAcknowledged, sla.EventFirstResponse, sla.EventInvestigationComplete}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := claimIDs[rand.Intn(len(claimIDs))]
		typ := types[rand.Intn(len(types))]
		_, err := svc.Record(ctx, claim.MilestoneRequest{
			ClaimID:        id,
			Type:           typ,
			ActorID:        "steward-1",
			IdempotencyKey: fmt.Sprintf("%s:%s:%d", id, typ, rand.Intn(3)),
		})
		switch {
		case err == nil:
		case errors.Is(err, claim.ErrMilestoneOutOfOrder), errors.Is(err, claim.ErrMilestoneRecorded):
		case !tolerable(ctx, err):
			return fmt.Errorf("record %s on %s: %w", typ, id, err)
		}
		pause(10, 30)
	}
}

// SignalToggler raises critical signals and resolves them again so the
// signal guard flips while transitions are in flight.
func SignalToggler(ctx context.Context, svc *signal.Service, claimIDs []string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		id := claimIDs[rand.Intn(len(claimIDs))]
		rec, err := svc.Raise(ctx, signal.CreateParams{ClaimID: id, Kind: "retaliation", Severity: signal.SeverityCritical})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pause(50, 50)
			continue
		}
		pause(30, 60)
		if _, err := svc.Resolve(ctx, rec.ID, "steward-1"); err != nil && !errors.Is(err, signal.ErrBadStatus) && ctx.Err() == nil {
			pause(50, 50)
		}
	}
}

type flakyPublisher struct{}

func (flakyPublisher) Publish(context.Context, outbox.Message) error {
	if rand.Intn(10) == 0 {
		return errors.New("broker unavailable")
	}
	return nil
}

func (flakyPublisher) Close() error { return nil }

// OutboxRelay drains the outbox through a publisher that fails one message in
// ten.
func OutboxRelay(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	relay := outbox.NewRelay(pool, outbox.NewStore(pool), flakyPublisher{}, outbox.RelayOptions{
		BatchSize:    10,
		MaxAttempts:  5,
		PollInterval: 100 * time.Millisecond,
	})
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		if _, err := relay.RunOnce(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		pause(50, 100)
	}
}

// Sweeper runs the SLA sweep repeatedly; breach notifications must stay
// deduplicated however often it runs.
func Sweeper(ctx context.Context, sweeper *report.Sweeper, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		_, _ = sweeper.Sweep(ctx)
		pause(200, 200)
	}
}
