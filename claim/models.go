package claim

import (
	"time"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Claim mirrors the claims table.
type Claim struct {
	ID               string
	MemberID         string
	StewardID        *string
	Title            string
	Description      string
	Category         string
	Priority         Priority
	Status           lifecycle.Status
	StatusChangedAt  time.Time
	HasDocumentation bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Filters struct {
	MemberID  string
	StewardID string
	Status    lifecycle.Status
	Priority  Priority
	Page      int
	PageSize  int
	SortKey   string
	SortOrder string
}

type ListResult struct {
	Items []Claim
	Total int
}

// Event is one row of a claim's append-only timeline.
type Event struct {
	ID         int64
	ClaimID    string
	Type       string
	ActorID    *string
	Payload    map[string]any
	OccurredAt time.Time
}

const (
	OutboxTopicClaimSubmitted    = "claim.submitted"
	OutboxTopicStatusChanged     = "claim.status_changed"
	OutboxTopicMilestoneRecorded = "claim.milestone_recorded"
	OutboxTopicSLABreached       = "claim.sla_breached"
)
