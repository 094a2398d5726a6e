package lifecycle

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

// monday is 2024-03-04 00:00 UTC.
var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

const detailedNotes = "Grievor was reinstated with full back pay after the employer conceded the discipline lacked just cause."

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := NewGuard(DefaultRules(), WithClock(func() time.Time { return monday }))
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	return g
}

func request(from, to Status, role auth.Role, inState time.Duration) TransitionRequest {
	return TransitionRequest{
		ClaimID:                  "claim-1",
		CurrentStatus:            from,
		TargetStatus:             to,
		UserID:                   "user-1",
		UserRole:                 role,
		StatusChangedAt:          monday,
		HasRequiredDocumentation: true,
		Now:                      monday.Add(inState),
	}
}

func TestGuard_ResultShapeForEveryPair(t *testing.T) {
	g := newTestGuard(t)
	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			res := g.Validate(request(from, to, auth.RoleAdmin, 30*24*time.Hour))
			if res.Allowed && (res.Reason != "" || res.BlockedBy != "") {
				t.Fatalf("%s -> %s: allowed result carries reason %q", from, to, res.Reason)
			}
			if !res.Allowed && res.Reason == "" {
				t.Fatalf("%s -> %s: rejection without reason", from, to)
			}
			if res.Allowed && res.Metadata == nil {
				t.Fatalf("%s -> %s: allowed result without metadata", from, to)
			}
		}
	}
}

func TestGuard_ClosedIsTerminal(t *testing.T) {
	g := newTestGuard(t)
	for _, to := range AllStatuses() {
		res := g.Validate(request(StatusClosed, to, auth.RoleAdmin, 365*24*time.Hour))
		if res.Allowed {
			t.Fatalf("closed -> %s: expected rejection", to)
		}
		if res.BlockedBy != CheckTerminal {
			t.Fatalf("closed -> %s: expected terminal check got %s", to, res.BlockedBy)
		}
	}
}

func TestGuard_AdjacencyRejection(t *testing.T) {
	g := newTestGuard(t)
	res := g.Validate(request(StatusSubmitted, StatusClosed, auth.RoleAdmin, time.Hour))
	if res.Allowed || res.BlockedBy != CheckAdjacency {
		t.Fatalf("expected adjacency rejection got %+v", res)
	}
	if !strings.Contains(res.Reason, "invalid transition") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	if len(res.RequiredActions) != 1 || !strings.Contains(res.RequiredActions[0], "under_review") {
		t.Fatalf("expected allowed targets in required actions got %v", res.RequiredActions)
	}

	res = g.Validate(request(Status("archived"), StatusClosed, auth.RoleAdmin, time.Hour))
	if res.Allowed || res.BlockedBy != CheckAdjacency {
		t.Fatalf("unknown status: expected adjacency rejection got %+v", res)
	}
}

func TestGuard_RoleGate(t *testing.T) {
	g := newTestGuard(t)
	for _, role := range []auth.Role{auth.RoleMember, auth.RoleSteward, ""} {
		res := g.Validate(request(StatusResolved, StatusClosed, role, 200*time.Hour))
		if res.Allowed {
			t.Fatalf("role %q: expected rejection", role)
		}
		if !strings.Contains(res.Reason, "not authorized") {
			t.Fatalf("role %q: unexpected reason %q", role, res.Reason)
		}
	}

	res := g.Validate(request(StatusResolved, StatusClosed, auth.RoleAdmin, 200*time.Hour))
	if !res.Allowed {
		t.Fatalf("admin: expected allowed got %q", res.Reason)
	}

	res = g.Validate(request(StatusUnderReview, StatusRejected, auth.RoleMember, 48*time.Hour))
	if res.Allowed || res.BlockedBy != CheckRole {
		t.Fatalf("member rejecting claim: expected role rejection got %+v", res)
	}
}

func TestGuard_DwellGate(t *testing.T) {
	g := newTestGuard(t)
	cases := []struct {
		from, to Status
		minHours int
	}{
		{StatusUnderReview, StatusInvestigation, 24},
		{StatusInvestigation, StatusResolved, 72},
		{StatusResolved, StatusClosed, 168},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			early := g.Validate(request(tc.from, tc.to, auth.RoleAdmin, time.Duration(tc.minHours-1)*time.Hour))
			if early.Allowed {
				t.Fatal("expected rejection before minimum dwell")
			}
			if !strings.Contains(early.Reason, "minimum duration") {
				t.Fatalf("unexpected reason %q", early.Reason)
			}

			onTime := g.Validate(request(tc.from, tc.to, auth.RoleAdmin, time.Duration(tc.minHours)*time.Hour))
			if !onTime.Allowed {
				t.Fatalf("expected allowed at minimum dwell got %q", onTime.Reason)
			}
		})
	}
}

func TestGuard_DwellAppliesToEveryTargetOfState(t *testing.T) {
	g := newTestGuard(t)
	res := g.Validate(request(StatusUnderReview, StatusAssigned, auth.RoleMember, 2*time.Hour))
	if res.Allowed || res.BlockedBy != CheckDwell {
		t.Fatalf("expected dwell rejection got %+v", res)
	}
}

func TestGuard_CriticalSignalsBlock(t *testing.T) {
	g := newTestGuard(t)
	req := request(StatusResolved, StatusClosed, auth.RoleAdmin, 200*time.Hour)
	req.HasUnresolvedCriticalSignals = true

	res := g.Validate(req)
	if res.Allowed {
		t.Fatal("expected rejection with unresolved critical signals")
	}
	if !strings.Contains(res.Reason, "critical signals") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	found := false
	for _, a := range res.RequiredActions {
		if strings.Contains(a, "Resolve all CRITICAL severity signals") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected signal remediation in %v", res.RequiredActions)
	}

	req.HasUnresolvedCriticalSignals = false
	if res := g.Validate(req); !res.Allowed {
		t.Fatalf("expected allowed once signals resolved got %q", res.Reason)
	}
}

func TestGuard_SignalsIgnoredOnUnflaggedEdges(t *testing.T) {
	g := newTestGuard(t)
	req := request(StatusInvestigation, StatusPendingDocumentation, auth.RoleMember, 100*time.Hour)
	req.HasUnresolvedCriticalSignals = true
	if res := g.Validate(req); !res.Allowed {
		t.Fatalf("expected allowed got %q", res.Reason)
	}
}

func TestGuard_DocumentationSubstitution(t *testing.T) {
	g := newTestGuard(t)
	req := request(StatusInvestigation, StatusResolved, auth.RoleSteward, 80*time.Hour)
	req.HasRequiredDocumentation = false

	res := g.Validate(req)
	if res.Allowed {
		t.Fatal("expected rejection without documentation")
	}
	if !strings.Contains(res.Reason, "documentation") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}

	req.Notes = "see file"
	if res := g.Validate(req); res.Allowed {
		t.Fatal("expected short notes to be rejected")
	}

	req.Notes = detailedNotes
	if res := g.Validate(req); !res.Allowed {
		t.Fatalf("expected detailed notes to substitute got %q", res.Reason)
	}
}

func TestGuard_SLAAdvisoryNeverBlocks(t *testing.T) {
	g := newTestGuard(t)
	req := request(StatusInvestigation, StatusResolved, auth.RoleSteward, 15*24*time.Hour)

	res := g.Validate(req)
	if !res.Allowed {
		t.Fatalf("expected allowed got %q", res.Reason)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "SLA") {
		t.Fatalf("expected SLA warning got %v", res.Warnings)
	}
	if res.Metadata == nil || res.Metadata.SLACompliant {
		t.Fatalf("expected sla non-compliant metadata got %+v", res.Metadata)
	}
}

func TestGuard_SLACompliantWithinWindow(t *testing.T) {
	g := newTestGuard(t)
	res := g.Validate(request(StatusInvestigation, StatusResolved, auth.RoleSteward, 72*time.Hour))
	if !res.Allowed {
		t.Fatalf("expected allowed got %q", res.Reason)
	}
	if res.Warnings != nil {
		t.Fatalf("expected no warnings got %v", res.Warnings)
	}
	if res.Metadata == nil || !res.Metadata.SLACompliant {
		t.Fatalf("expected compliant metadata got %+v", res.Metadata)
	}
}

func TestGuard_TimelineAdvisory(t *testing.T) {
	g := newTestGuard(t)
	req := request(StatusUnderReview, StatusAssigned, auth.RoleSteward, 72*time.Hour)
	req.StatusChangedAt = monday.Add(24 * time.Hour)
	req.Now = monday.Add(96 * time.Hour)
	req.Timeline = []sla.Event{{Type: sla.EventSubmitted, Timestamp: monday}}

	res := g.Validate(req)
	if !res.Allowed {
		t.Fatalf("expected allowed got %q", res.Reason)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "acknowledgment") {
		t.Fatalf("expected acknowledgment warning got %v", res.Warnings)
	}
	if res.Metadata.SLACompliant {
		t.Fatal("expected non-compliant metadata")
	}

	req.Timeline = []sla.Event{{Type: sla.EventAcknowledged, Timestamp: monday}}
	res = g.Validate(req)
	if !res.Allowed || res.Warnings != nil || !res.Metadata.SLACompliant {
		t.Fatalf("timeline without submission should fall back to the state clock, got %+v", res)
	}
}

func TestNewGuard_RejectsIncompleteRules(t *testing.T) {
	rules := DefaultRules()
	delete(rules.States, StatusAssigned)
	if _, err := NewGuard(rules); !errors.Is(err, ErrInvalidRules) {
		t.Fatalf("expected ErrInvalidRules got %v", err)
	}

	rules = DefaultRules()
	rules.States[StatusClosed] = StateRules{Edges: []Edge{{To: StatusUnderReview}}}
	if _, err := NewGuard(rules); !errors.Is(err, ErrInvalidRules) {
		t.Fatalf("expected ErrInvalidRules for reopening edge got %v", err)
	}

	rules = DefaultRules()
	rules.SetRequiredRole(StatusClosed, auth.Role("chair"))
	if _, err := NewGuard(rules); !errors.Is(err, ErrInvalidRules) {
		t.Fatalf("expected ErrInvalidRules for unknown role got %v", err)
	}
}

func TestNewGuard_OwnsRules(t *testing.T) {
	rules := DefaultRules()
	g, err := NewGuard(rules)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	rules.SetMinDwell(StatusUnderReview, 0)
	rules.SetRequiredRole(StatusClosed, auth.RoleMember)

	res := g.Validate(request(StatusUnderReview, StatusAssigned, auth.RoleMember, time.Hour))
	if res.Allowed {
		t.Fatal("guard picked up a change made after construction")
	}
	res = g.Validate(request(StatusResolved, StatusClosed, auth.RoleMember, 200*time.Hour))
	if res.Allowed {
		t.Fatal("guard picked up a role change made after construction")
	}
}

func TestGuard_ConfiguredRules(t *testing.T) {
	rules := DefaultRules()
	rules.SetMinDwell(StatusInvestigation, 0)
	rules.SetRequiredRole(StatusResolved, auth.RoleSteward)
	g, err := NewGuard(rules)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}

	if res := g.Validate(request(StatusInvestigation, StatusResolved, auth.RoleMember, time.Hour)); res.BlockedBy != CheckRole {
		t.Fatalf("expected role rejection got %+v", res)
	}
	if res := g.Validate(request(StatusInvestigation, StatusResolved, auth.RoleSteward, time.Hour)); !res.Allowed {
		t.Fatalf("expected allowed got %q", res.Reason)
	}
}

func TestGuard_ConcurrentValidate(t *testing.T) {
	g := newTestGuard(t)
	var eg errgroup.Group
	for i := 0; i < 64; i++ {
		i := i
		eg.Go(func() error {
			role := auth.RoleMember
			if i%2 == 0 {
				role = auth.RoleAdmin
			}
			res := g.Validate(request(StatusResolved, StatusClosed, role, 200*time.Hour))
			if res.Allowed != (role == auth.RoleAdmin) {
				return errors.New("unexpected decision for " + string(role))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestDetailedNotes(t *testing.T) {
	cases := []struct {
		name  string
		notes string
		want  bool
	}{
		{"empty", "", false},
		{"whitespace", strings.Repeat(" ", 80), false},
		{"short", "resolved at step 2", false},
		{"long but few words", strings.Repeat("x", 60) + " " + strings.Repeat("y", 10), false},
		{"detailed", detailedNotes, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetailedNotes(tc.notes, DefaultMinNotesLength, DefaultMinNotesWords); got != tc.want {
				t.Fatalf("DetailedNotes(%q) = %v, want %v", tc.notes, got, tc.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" Under_Review "); !ok || s != StatusUnderReview {
		t.Fatalf("ParseStatus = %q, %v", s, ok)
	}
	if _, ok := ParseStatus("archived"); ok {
		t.Fatal("expected unknown status to fail")
	}
}

func TestGuard_DwellUnknownEntryTime(t *testing.T) {
	g := newTestGuard(t)

	req := request(StatusUnderReview, StatusAssigned, auth.RoleAdmin, 48*time.Hour)
	req.StatusChangedAt = time.Time{}
	res := g.Validate(req)
	if res.Allowed || res.BlockedBy != CheckDwell {
		t.Fatalf("expected dwell rejection for unknown entry time, got %+v", res)
	}
	if !strings.Contains(res.Reason, "minimum duration") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}

	// submitted has no minimum dwell, so the entry time is irrelevant there.
	req = request(StatusSubmitted, StatusUnderReview, auth.RoleAdmin, 0)
	req.StatusChangedAt = time.Time{}
	if res := g.Validate(req); !res.Allowed {
		t.Fatalf("expected allowed without dwell, got %+v", res)
	}
}
