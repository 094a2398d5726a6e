package claim

import (
	"time"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

// ToTimeline converts stored events into the shape the SLA calculator reads.
// Order is preserved.
func ToTimeline(events []Event) []sla.Event {
	out := make([]sla.Event, 0, len(events))
	for _, e := range events {
		ev := sla.Event{
			Type:      sla.EventType(e.Type),
			Timestamp: e.OccurredAt,
			Metadata:  e.Payload,
		}
		if e.ActorID != nil {
			ev.UserID = *e.ActorID
		}
		out = append(out, ev)
	}
	return out
}

// IsMilestone reports whether t is a milestone that may be recorded directly.
func IsMilestone(t sla.EventType) bool {
	switch t {
	case sla.EventAcknowledged, sla.EventFirstResponse, sla.EventInvestigationComplete:
		return true
	}
	return false
}

// milestonePrerequisite is the milestone that must already be on the timeline
// before t can be recorded.
func milestonePrerequisite(t sla.EventType) (sla.EventType, bool) {
	switch t {
	case sla.EventFirstResponse, sla.EventInvestigationComplete:
		return sla.EventAcknowledged, true
	}
	return "", false
}

func hasEvent(timeline []sla.Event, t sla.EventType) bool {
	for _, e := range timeline {
		if e.Type == t {
			return true
		}
	}
	return false
}

// clockStart is the event whose time a milestone of type t may not precede.
func clockStart(t sla.EventType) sla.EventType {
	if pre, ok := milestonePrerequisite(t); ok {
		return pre
	}
	return sla.EventSubmitted
}

// earliest returns the first timestamp of type t on the timeline.
func earliest(timeline []sla.Event, t sla.EventType) (time.Time, bool) {
	var found time.Time
	ok := false
	for _, e := range timeline {
		if e.Type == t && (!ok || e.Timestamp.Before(found)) {
			found, ok = e.Timestamp, true
		}
	}
	return found, ok
}
