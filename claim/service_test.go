package claim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func TestService_Create(t *testing.T) {
	pool := &fakePool{}
	repo := newMemRepo()
	outbox := &fakeOutbox{}
	svc := NewService(pool, repo, outbox).
		WithIDGenerator(func() string { return "claim-1" }).
		WithClock(func() time.Time { return monday })

	created, err := svc.Create(context.Background(), CreateParams{
		MemberID: "member-1",
		Title:    "  Unpaid overtime for March  ",
		Category: "wages",
		Priority: PriorityHigh,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if created.ID != "claim-1" {
		t.Fatalf("expected generated id got %q", created.ID)
	}
	if created.Status != lifecycle.StatusSubmitted {
		t.Fatalf("expected submitted status got %s", created.Status)
	}
	if created.Title != "Unpaid overtime for March" {
		t.Fatalf("expected trimmed title got %q", created.Title)
	}
	if !created.StatusChangedAt.Equal(monday) {
		t.Fatalf("expected status_changed_at %v got %v", monday, created.StatusChangedAt)
	}

	if types := repo.eventTypes("claim-1"); len(types) != 1 || types[0] != string(sla.EventSubmitted) {
		t.Fatalf("expected submitted timeline event got %v", types)
	}
	if len(outbox.messages) != 1 || outbox.messages[0].topic != OutboxTopicClaimSubmitted {
		t.Fatalf("expected claim.submitted outbox message got %+v", outbox.messages)
	}
	if outbox.messages[0].key != "claim-1" {
		t.Fatalf("expected outbox key to be the claim id got %q", outbox.messages[0].key)
	}
	if tx := pool.last(); tx == nil || !tx.committed {
		t.Fatal("expected transaction to be committed")
	}
}

func TestService_CreateDefaultsPriority(t *testing.T) {
	svc := NewService(&fakePool{}, newMemRepo(), nil)
	created, err := svc.Create(context.Background(), CreateParams{MemberID: "m", Title: "Shift swap denied"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Priority != PriorityMedium {
		t.Fatalf("expected medium priority got %s", created.Priority)
	}
}

func TestService_CreateValidation(t *testing.T) {
	cases := []struct {
		name   string
		params CreateParams
	}{
		{"missing member", CreateParams{Title: "x"}},
		{"blank title", CreateParams{MemberID: "m", Title: "   "}},
		{"bad priority", CreateParams{MemberID: "m", Title: "x", Priority: "whenever"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool := &fakePool{}
			svc := NewService(pool, newMemRepo(), &fakeOutbox{})
			if _, err := svc.Create(context.Background(), tc.params); err == nil {
				t.Fatal("expected validation error")
			}
			if len(pool.txs) != 0 {
				t.Fatal("expected no transaction for invalid input")
			}
		})
	}
}

func TestService_CreateOutboxFailureRollsBack(t *testing.T) {
	pool := &fakePool{}
	svc := NewService(pool, newMemRepo(), &fakeOutbox{err: errors.New("boom")})
	if _, err := svc.Create(context.Background(), CreateParams{MemberID: "m", Title: "x"}); err == nil {
		t.Fatal("expected error")
	}
	tx := pool.last()
	if tx.committed || !tx.rolled {
		t.Fatalf("expected rollback without commit got %+v", tx)
	}
}

func TestService_Timeline(t *testing.T) {
	repo := newMemRepo()
	actor := "steward-1"
	repo.seed(Claim{ID: "c1", Status: lifecycle.StatusUnderReview},
		Event{Type: string(sla.EventSubmitted), OccurredAt: monday},
		Event{Type: string(sla.EventAcknowledged), OccurredAt: monday.Add(time.Hour), ActorID: &actor},
	)
	svc := NewService(&fakePool{}, repo, nil)

	timeline, err := svc.Timeline(context.Background(), "c1")
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(timeline) != 2 || timeline[1].Type != sla.EventAcknowledged || timeline[1].UserID != actor {
		t.Fatalf("unexpected timeline %+v", timeline)
	}

	if _, err := svc.Timeline(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}
