package sla

import (
	"fmt"
	"time"
)

// Status is the compliance state of a single SLA milestone. Statuses are
// ordered within_sla < at_risk < breached.
type Status string

const (
	StatusWithinSLA Status = "within_sla"
	StatusAtRisk    Status = "at_risk"
	StatusBreached  Status = "breached"
)

// AtRiskPercent is the share of an allowed window a pending milestone may
// consume before it is reported at risk.
const AtRiskPercent = 80

// Severity orders statuses; higher is worse.
func (s Status) Severity() int {
	switch s {
	case StatusWithinSLA:
		return 0
	case StatusAtRisk:
		return 1
	case StatusBreached:
		return 2
	default:
		return -1
	}
}

// Worst returns the more severe of a and b.
func Worst(a, b Status) Status {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// MaxWindowDays bounds a window so that its length fits in a time.Duration.
const MaxWindowDays = 36500

// Window is an allowed business-day budget for one milestone.
type Window struct {
	Name        string
	Days        float64
	Description string
}

var (
	AcknowledgmentWindow = Window{Name: "acknowledgment", Days: 2, Description: "Acknowledge the claim within %s business days of submission"}
	FirstResponseWindow  = Window{Name: "first_response", Days: 5, Description: "Send a first response within %s business days of acknowledgment"}
	InvestigationWindow  = Window{Name: "investigation", Days: 15, Description: "Complete the investigation within %s business days of acknowledgment"}
)

// Metric is the derived compliance state of one milestone.
type Metric struct {
	Status        Status
	DaysElapsed   float64
	DaysAllowed   float64
	DaysRemaining float64
	// BreachDate is set only when Status is breached.
	BreachDate  *time.Time
	Description string
}

// Assess derives the metric for a milestone whose clock started at start.
// completion is nil while the milestone is still pending, in which case the
// metric is evaluated at now.
//
// A completed milestone is within SLA when it finished no later than the end
// of the window. A pending milestone is at risk once it has consumed
// AtRiskPercent of the window and breached once the window has fully
// elapsed.
func Assess(w Window, start time.Time, completion *time.Time, now time.Time) Metric {
	at := now
	if completion != nil {
		at = *completion
	}

	elapsed := businessDuration(start, at)
	allowed := time.Duration(w.Days * float64(businessDay))

	var status Status
	switch {
	case completion != nil && elapsed <= allowed:
		status = StatusWithinSLA
	case completion != nil:
		status = StatusBreached
	case elapsed >= allowed:
		status = StatusBreached
	case float64(elapsed) >= float64(allowed)*AtRiskPercent/100:
		status = StatusAtRisk
	default:
		status = StatusWithinSLA
	}

	m := Metric{
		Status:        status,
		DaysElapsed:   float64(elapsed) / float64(businessDay),
		DaysAllowed:   w.Days,
		DaysRemaining: float64(allowed-elapsed) / float64(businessDay),
		Description:   fmt.Sprintf(w.Description, formatDays(w.Days)),
	}
	if status == StatusBreached {
		breach := addBusinessDuration(start, allowed)
		m.BreachDate = &breach
	}
	return m
}

func formatDays(d float64) string {
	if d == float64(int64(d)) {
		return fmt.Sprintf("%d", int64(d))
	}
	return fmt.Sprintf("%.1f", d)
}
