package sla

import "time"

// businessDay is the length of one counted business day. Elapsed time is
// accumulated only on Monday–Friday; there is no holiday calendar.
const businessDay = 24 * time.Hour

// BusinessDaysBetween counts the business days elapsed from start to end,
// including the fractional part of partially elapsed days. Weekend time is
// skipped. The result is negative when end precedes start.
func BusinessDaysBetween(start, end time.Time) float64 {
	return float64(businessDuration(start, end)) / float64(businessDay)
}

// AddBusinessDays returns the instant at which days business days have
// elapsed since start.
func AddBusinessDays(start time.Time, days float64) time.Time {
	return addBusinessDuration(start, time.Duration(days*float64(businessDay)))
}

// businessDuration is computed in the location of start so that day
// boundaries are those of the caller's calendar.
func businessDuration(start, end time.Time) time.Duration {
	if end.Before(start) {
		return -businessDuration(end, start)
	}
	end = end.In(start.Location())

	var total time.Duration
	for t := start; t.Before(end); {
		next := nextMidnight(t)
		if next.After(end) {
			next = end
		}
		if isBusinessDay(t) {
			total += next.Sub(t)
		}
		t = next
	}
	return total
}

func addBusinessDuration(start time.Time, d time.Duration) time.Time {
	t := start
	for d > 0 {
		next := nextMidnight(t)
		if !isBusinessDay(t) {
			t = next
			continue
		}
		remaining := next.Sub(t)
		if d <= remaining {
			return t.Add(d)
		}
		d -= remaining
		t = next
	}
	return t
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func isBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}
