package claim

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

func newStatusService(t *testing.T, repo Repository, signals SignalChecker, outbox OutboxWriter, now time.Time) (*StatusService, *fakePool, *fakeObserver) {
	t.Helper()
	guard, err := lifecycle.NewGuard(lifecycle.DefaultRules())
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	pool := &fakePool{}
	obs := &fakeObserver{}
	svc := NewStatusService(pool, repo, guard, signals, outbox).
		WithClock(func() time.Time { return now }).
		WithObserver(obs)
	return svc, pool, obs
}

func seedInvestigation(repo *memRepo) {
	repo.seed(Claim{
		ID:              "c1",
		MemberID:        "member-1",
		Priority:        PriorityHigh,
		Status:          lifecycle.StatusInvestigation,
		StatusChangedAt: monday,
	},
		Event{Type: string(sla.EventSubmitted), OccurredAt: monday},
		Event{Type: string(sla.EventAcknowledged), OccurredAt: monday.Add(9 * time.Hour)},
	)
}

func TestStatusService_TransitionAllowed(t *testing.T) {
	repo := newMemRepo()
	seedInvestigation(repo)
	outbox := &fakeOutbox{}
	now := monday.Add(80 * time.Hour)
	svc, pool, obs := newStatusService(t, repo, fakeSignals{}, outbox, now)

	res, err := svc.Transition(context.Background(), TransitionParams{
		ClaimID:                  "c1",
		ActorID:                  "steward-1",
		ActorRole:                auth.RoleSteward,
		TargetStatus:             lifecycle.StatusResolved,
		HasRequiredDocumentation: true,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected allowed got %q", res.Reason)
	}
	if res.Metadata == nil || !res.Metadata.SLACompliant {
		t.Fatalf("expected compliant metadata got %+v", res.Metadata)
	}

	c, _ := repo.Get(context.Background(), nil, "c1")
	if c.Status != lifecycle.StatusResolved || !c.StatusChangedAt.Equal(now) {
		t.Fatalf("expected resolved at %v got %s at %v", now, c.Status, c.StatusChangedAt)
	}
	types := repo.eventTypes("c1")
	if types[len(types)-1] != string(sla.EventStatusChanged) {
		t.Fatalf("expected status_changed event got %v", types)
	}
	if len(outbox.messages) != 1 || outbox.messages[0].topic != OutboxTopicStatusChanged {
		t.Fatalf("expected status_changed outbox message got %+v", outbox.messages)
	}
	if outbox.messages[0].payload["previous"] != lifecycle.StatusInvestigation {
		t.Fatalf("unexpected outbox payload %+v", outbox.messages[0].payload)
	}
	if !pool.last().committed {
		t.Fatal("expected commit")
	}
	if len(obs.seen) != 1 || !obs.seen[0].allowed {
		t.Fatalf("expected one allowed observation got %+v", obs.seen)
	}
}

func TestStatusService_TransitionBlockedBySignals(t *testing.T) {
	repo := newMemRepo()
	repo.seed(Claim{ID: "c1", Status: lifecycle.StatusResolved, StatusChangedAt: monday},
		Event{Type: string(sla.EventSubmitted), OccurredAt: monday})
	outbox := &fakeOutbox{}
	svc, pool, obs := newStatusService(t, repo, fakeSignals{critical: true}, outbox, monday.Add(200*time.Hour))

	res, err := svc.Transition(context.Background(), TransitionParams{
		ClaimID:      "c1",
		ActorID:      "admin-1",
		ActorRole:    auth.RoleAdmin,
		TargetStatus: lifecycle.StatusClosed,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if res.Allowed || !strings.Contains(res.Reason, "critical signals") {
		t.Fatalf("expected critical signal rejection got %+v", res)
	}

	tx := pool.last()
	if tx.committed || !tx.rolled {
		t.Fatal("expected rollback without commit")
	}
	if repo.updates != 0 || len(outbox.messages) != 0 {
		t.Fatal("blocked transition must not write")
	}
	if len(obs.seen) != 1 || obs.seen[0].allowed {
		t.Fatalf("expected one blocked observation got %+v", obs.seen)
	}
}

func TestStatusService_TransitionUsesStoredDocumentationFlag(t *testing.T) {
	repo := newMemRepo()
	repo.seed(Claim{ID: "c1", Status: lifecycle.StatusInvestigation, StatusChangedAt: monday, HasDocumentation: true})
	svc, _, _ := newStatusService(t, repo, nil, nil, monday.Add(72*time.Hour))

	res, err := svc.Transition(context.Background(), TransitionParams{
		ClaimID:      "c1",
		ActorRole:    auth.RoleSteward,
		TargetStatus: lifecycle.StatusResolved,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected allowed got %q", res.Reason)
	}
}

func TestStatusService_TransitionErrors(t *testing.T) {
	repo := newMemRepo()
	seedInvestigation(repo)

	svc, _, _ := newStatusService(t, repo, fakeSignals{}, nil, monday)
	if _, err := svc.Transition(context.Background(), TransitionParams{ClaimID: "missing", TargetStatus: lifecycle.StatusResolved}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if _, err := svc.Transition(context.Background(), TransitionParams{ClaimID: "c1"}); err == nil {
		t.Fatal("expected error for missing target")
	}

	boom := errors.New("detector offline")
	svc, _, _ = newStatusService(t, repo, fakeSignals{err: boom}, nil, monday.Add(80*time.Hour))
	if _, err := svc.Transition(context.Background(), TransitionParams{ClaimID: "c1", TargetStatus: lifecycle.StatusResolved}); !errors.Is(err, boom) {
		t.Fatalf("expected signal error got %v", err)
	}
}

func TestStatusService_PreviewDoesNotWrite(t *testing.T) {
	repo := newMemRepo()
	seedInvestigation(repo)
	outbox := &fakeOutbox{}
	svc, pool, obs := newStatusService(t, repo, fakeSignals{}, outbox, monday.Add(15*24*time.Hour))

	res, err := svc.Preview(context.Background(), TransitionParams{
		ClaimID:                  "c1",
		ActorRole:                auth.RoleSteward,
		TargetStatus:             lifecycle.StatusResolved,
		HasRequiredDocumentation: true,
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !res.Allowed || res.Metadata.SLACompliant {
		t.Fatalf("expected allowed with SLA warning got %+v", res)
	}
	if repo.updates != 0 || len(outbox.messages) != 0 || len(obs.seen) != 0 {
		t.Fatal("preview must not write or observe")
	}
	if pool.last().committed {
		t.Fatal("preview must not commit")
	}
}
