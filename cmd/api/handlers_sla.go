package main

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/signal"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

type metricResponse struct {
	Status        string  `json:"status"`
	DaysElapsed   float64 `json:"daysElapsed"`
	DaysAllowed   float64 `json:"daysAllowed"`
	DaysRemaining float64 `json:"daysRemaining"`
	BreachDate    *string `json:"breachDate,omitempty"`
	Description   string  `json:"description"`
}

type assessmentResponse struct {
	ClaimID        string          `json:"claimId"`
	Acknowledgment metricResponse  `json:"acknowledgment"`
	FirstResponse  *metricResponse `json:"firstResponse,omitempty"`
	Investigation  *metricResponse `json:"investigation,omitempty"`
	OverallStatus  string          `json:"overallStatus"`
	CriticalSLAs   []string        `json:"criticalSlas"`
}

type reportResponse struct {
	GeneratedAt string               `json:"generatedAt"`
	Total       int                  `json:"total"`
	Counts      map[string]int       `json:"counts"`
	AtRisk      []assessmentResponse `json:"atRisk"`
	Breached    []assessmentResponse `json:"breached"`
	Skipped     []string             `json:"skipped"`
}

type signalResponse struct {
	ID          string  `json:"id"`
	ClaimID     string  `json:"claimId"`
	Kind        string  `json:"kind"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	DetectedAt  string  `json:"detectedAt"`
	ResolvedAt  *string `json:"resolvedAt,omitempty"`
	ResolvedBy  *string `json:"resolvedBy,omitempty"`
}

type raiseSignalRequest struct {
	Kind        string `json:"kind"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

type resolveSignalRequest struct {
	Status string `json:"status"`
}

func toMetricResponse(m sla.Metric) metricResponse {
	return metricResponse{
		Status:        string(m.Status),
		DaysElapsed:   m.DaysElapsed,
		DaysAllowed:   m.DaysAllowed,
		DaysRemaining: m.DaysRemaining,
		BreachDate:    formatTimePtr(m.BreachDate),
		Description:   m.Description,
	}
}

func toAssessmentResponse(a sla.CaseAssessment) assessmentResponse {
	out := assessmentResponse{
		ClaimID:        a.CaseID,
		Acknowledgment: toMetricResponse(a.Acknowledgment),
		OverallStatus:  string(a.OverallStatus),
		CriticalSLAs:   append([]string{}, a.CriticalSLAs...),
	}
	if a.FirstResponse != nil {
		m := toMetricResponse(*a.FirstResponse)
		out.FirstResponse = &m
	}
	if a.Investigation != nil {
		m := toMetricResponse(*a.Investigation)
		out.Investigation = &m
	}
	return out
}

func toAssessmentResponses(in []sla.CaseAssessment) []assessmentResponse {
	out := make([]assessmentResponse, 0, len(in))
	for _, a := range in {
		out = append(out, toAssessmentResponse(a))
	}
	return out
}

func toSignalResponse(rec signal.Record) signalResponse {
	return signalResponse{
		ID:          rec.ID,
		ClaimID:     rec.ClaimID,
		Kind:        rec.Kind,
		Severity:    string(rec.Severity),
		Description: rec.Description,
		Status:      string(rec.Status),
		DetectedAt:  formatTime(rec.DetectedAt),
		ResolvedAt:  formatTimePtr(rec.ResolvedAt),
		ResolvedBy:  rec.ResolvedBy,
	}
}

func (s *Server) handleClaimSLA(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadVisibleClaim(w, r)
	if !ok {
		return
	}
	a, err := s.reporter.ClaimStatus(r.Context(), c.ID)
	if err != nil {
		switch {
		case errors.Is(err, sla.ErrMissingSubmissionEvent):
			writeError(w, http.StatusUnprocessableEntity, "claim timeline has no submission event")
			return
		case errors.Is(err, sla.ErrDuplicateSubmissionEvent):
			writeError(w, http.StatusUnprocessableEntity, "claim timeline has more than one submission event")
			return
		}
		s.claimError(w, err, "assess claim")
		return
	}
	writeJSON(w, http.StatusOK, toAssessmentResponse(a))
}

func (s *Server) handleSLAReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reporter.Assess(r.Context())
	if err != nil {
		s.log().Error("sla report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not build sla report")
		return
	}
	counts := make(map[string]int, len(rep.Counts))
	for status, n := range rep.Counts {
		counts[string(status)] = n
	}
	skipped := append([]string{}, rep.Skipped...)
	sort.Strings(skipped)
	writeJSON(w, http.StatusOK, reportResponse{
		GeneratedAt: formatTime(rep.GeneratedAt),
		Total:       len(rep.Assessments),
		Counts:      counts,
		AtRisk:      toAssessmentResponses(rep.AtRisk),
		Breached:    toAssessmentResponses(rep.Breached),
		Skipped:     skipped,
	})
}

func (s *Server) signalError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, signal.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, signal.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, signal.ErrBadStatus):
		writeError(w, http.StatusConflict, "signal already resolved")
	default:
		s.log().Error(action, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not "+action)
	}
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	onlyOpen := r.URL.Query().Get("open") == "true"
	records, err := s.signalService.List(r.Context(), chi.URLParam(r, "claimID"), onlyOpen)
	if err != nil {
		s.signalError(w, err, "list signals")
		return
	}
	items := make([]signalResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toSignalResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleRaiseSignal(w http.ResponseWriter, r *http.Request) {
	var req raiseSignalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.signalService.Raise(r.Context(), signal.CreateParams{
		ClaimID:     chi.URLParam(r, "claimID"),
		Kind:        req.Kind,
		Severity:    signal.Severity(req.Severity),
		Description: req.Description,
	})
	if err != nil {
		s.signalError(w, err, "raise signal")
		return
	}
	writeJSON(w, http.StatusCreated, toSignalResponse(rec))
}

// handleResolveSignal only supports moving a signal to resolved.
func (s *Server) handleResolveSignal(w http.ResponseWriter, r *http.Request) {
	var req resolveSignalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if signal.Status(req.Status) != signal.StatusResolved {
		writeError(w, http.StatusBadRequest, "status must be resolved")
		return
	}
	rec, err := s.signalService.Resolve(r.Context(), chi.URLParam(r, "signalID"), userIDFrom(r.Context()))
	if err != nil {
		s.signalError(w, err, "resolve signal")
		return
	}
	writeJSON(w, http.StatusOK, toSignalResponse(rec))
}
