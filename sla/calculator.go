// Package sla computes deadline compliance for the milestones of a claim:
// acknowledgment, first response and investigation. Every function is pure;
// callers pass the evaluation instant explicitly.
package sla

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrMissingSubmissionEvent is returned when a timeline has no submitted
// event, so no SLA clock can be anchored.
var ErrMissingSubmissionEvent = errors.New("sla: timeline has no submitted event")

// ErrDuplicateSubmissionEvent is returned when a timeline has more than one
// submitted event, so the SLA clock would be ambiguous.
var ErrDuplicateSubmissionEvent = errors.New("sla: timeline has more than one submitted event")

// EventType classifies a timeline entry. Only the milestone types below drive
// SLA clocks; any other type is carried but ignored.
type EventType string

const (
	EventSubmitted             EventType = "submitted"
	EventAcknowledged          EventType = "acknowledged"
	EventFirstResponse         EventType = "first_response"
	EventInvestigationComplete EventType = "investigation_complete"
	EventStatusChanged         EventType = "status_changed"
)

// Event is one dated entry of a claim timeline.
type Event struct {
	Type      EventType
	Timestamp time.Time
	UserID    string
	Metadata  map[string]any
}

// CaseAssessment is the SLA picture of one claim. FirstResponse and
// Investigation are nil until the claim has been acknowledged.
type CaseAssessment struct {
	CaseID         string
	Acknowledgment Metric
	FirstResponse  *Metric
	Investigation  *Metric
	OverallStatus  Status
	CriticalSLAs   []string
}

// Windows groups the business-day budgets of the three milestones.
type Windows struct {
	Acknowledgment Window
	FirstResponse  Window
	Investigation  Window
}

// DefaultWindows are the contractual 2/5/15 business-day budgets.
func DefaultWindows() Windows {
	return Windows{
		Acknowledgment: AcknowledgmentWindow,
		FirstResponse:  FirstResponseWindow,
		Investigation:  InvestigationWindow,
	}
}

// Calculator evaluates milestones against a fixed set of windows. The zero
// value is not usable; build one with NewCalculator.
type Calculator struct {
	windows Windows
}

// NewCalculator returns a calculator using w.
func NewCalculator(w Windows) *Calculator {
	return &Calculator{windows: w}
}

var defaultCalculator = NewCalculator(DefaultWindows())

// Windows returns the budgets the calculator applies.
func (c *Calculator) Windows() Windows {
	return c.windows
}

func (c *Calculator) AcknowledgmentSLA(submittedAt time.Time, acknowledgedAt *time.Time, now time.Time) Metric {
	return Assess(c.windows.Acknowledgment, submittedAt, acknowledgedAt, now)
}

func (c *Calculator) FirstResponseSLA(acknowledgedAt time.Time, firstResponseAt *time.Time, now time.Time) Metric {
	return Assess(c.windows.FirstResponse, acknowledgedAt, firstResponseAt, now)
}

func (c *Calculator) InvestigationSLA(acknowledgedAt time.Time, completeAt *time.Time, now time.Time) Metric {
	return Assess(c.windows.Investigation, acknowledgedAt, completeAt, now)
}

// CaseStatus assesses every milestone whose clock has started. The
// investigation clock starts at acknowledgment, not at first response.
// The timeline must hold exactly one submitted event. Repeated later
// milestones count from their earliest occurrence.
func (c *Calculator) CaseStatus(caseID string, timeline []Event, now time.Time) (CaseAssessment, error) {
	switch countOf(timeline, EventSubmitted) {
	case 0:
		return CaseAssessment{}, fmt.Errorf("%w (case %s)", ErrMissingSubmissionEvent, caseID)
	case 1:
	default:
		return CaseAssessment{}, fmt.Errorf("%w (case %s)", ErrDuplicateSubmissionEvent, caseID)
	}
	submitted := firstOf(timeline, EventSubmitted)
	acknowledged := firstOf(timeline, EventAcknowledged)

	out := CaseAssessment{
		CaseID:       caseID,
		CriticalSLAs: []string{},
	}
	out.Acknowledgment = c.AcknowledgmentSLA(*submitted, acknowledged, now)
	out.OverallStatus = out.Acknowledgment.Status
	out.noteCritical(c.windows.Acknowledgment.Name, out.Acknowledgment)

	if acknowledged != nil {
		fr := c.FirstResponseSLA(*acknowledged, firstOf(timeline, EventFirstResponse), now)
		out.FirstResponse = &fr
		out.OverallStatus = Worst(out.OverallStatus, fr.Status)
		out.noteCritical(c.windows.FirstResponse.Name, fr)

		inv := c.InvestigationSLA(*acknowledged, firstOf(timeline, EventInvestigationComplete), now)
		out.Investigation = &inv
		out.OverallStatus = Worst(out.OverallStatus, inv.Status)
		out.noteCritical(c.windows.Investigation.Name, inv)
	}

	return out, nil
}

func (a *CaseAssessment) noteCritical(name string, m Metric) {
	if m.Status != StatusWithinSLA {
		a.CriticalSLAs = append(a.CriticalSLAs, name)
	}
}

func countOf(timeline []Event, typ EventType) int {
	n := 0
	for i := range timeline {
		if timeline[i].Type == typ {
			n++
		}
	}
	return n
}

// firstOf returns the earliest timestamp of the given type, or nil.
func firstOf(timeline []Event, typ EventType) *time.Time {
	var found *time.Time
	for i := range timeline {
		if timeline[i].Type != typ {
			continue
		}
		ts := timeline[i].Timestamp
		if found == nil || ts.Before(*found) {
			found = &ts
		}
	}
	return found
}

// AcknowledgmentSLA assesses the acknowledgment milestone with the default windows.
func AcknowledgmentSLA(submittedAt time.Time, acknowledgedAt *time.Time, now time.Time) Metric {
	return defaultCalculator.AcknowledgmentSLA(submittedAt, acknowledgedAt, now)
}

// FirstResponseSLA assesses the first-response milestone with the default windows.
func FirstResponseSLA(acknowledgedAt time.Time, firstResponseAt *time.Time, now time.Time) Metric {
	return defaultCalculator.FirstResponseSLA(acknowledgedAt, firstResponseAt, now)
}

// InvestigationSLA assesses the investigation milestone with the default windows.
func InvestigationSLA(acknowledgedAt time.Time, completeAt *time.Time, now time.Time) Metric {
	return defaultCalculator.InvestigationSLA(acknowledgedAt, completeAt, now)
}

// CaseStatus assesses a timeline with the default windows.
func CaseStatus(caseID string, timeline []Event, now time.Time) (CaseAssessment, error) {
	return defaultCalculator.CaseStatus(caseID, timeline, now)
}

// AtRiskCases keeps the assessments whose overall status is at_risk, in input order.
func AtRiskCases(assessments []CaseAssessment) []CaseAssessment {
	return filterByStatus(assessments, StatusAtRisk)
}

// BreachedCases keeps the assessments whose overall status is breached, in input order.
func BreachedCases(assessments []CaseAssessment) []CaseAssessment {
	return filterByStatus(assessments, StatusBreached)
}

func filterByStatus(assessments []CaseAssessment, status Status) []CaseAssessment {
	out := make([]CaseAssessment, 0, len(assessments))
	for _, a := range assessments {
		if a.OverallStatus == status {
			out = append(out, a)
		}
	}
	return out
}

// SortTimeline orders events by timestamp, keeping the relative order of
// events that share an instant.
func SortTimeline(timeline []Event) {
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})
}
