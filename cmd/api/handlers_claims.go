package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/claim"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

type claimResponse struct {
	ID               string  `json:"id"`
	MemberID         string  `json:"memberId"`
	StewardID        *string `json:"stewardId,omitempty"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Category         string  `json:"category"`
	Priority         string  `json:"priority"`
	Status           string  `json:"status"`
	StatusChangedAt  string  `json:"statusChangedAt"`
	HasDocumentation bool    `json:"hasDocumentation"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

type createClaimRequest struct {
	MemberID         string  `json:"memberId"`
	StewardID        *string `json:"stewardId"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Category         string  `json:"category"`
	Priority         string  `json:"priority"`
	HasDocumentation bool    `json:"hasDocumentation"`
}

type timelineEventResponse struct {
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	UserID    string         `json:"userId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type transitionRequest struct {
	TargetStatus             string `json:"targetStatus"`
	Notes                    string `json:"notes"`
	HasRequiredDocumentation bool   `json:"hasRequiredDocumentation"`
}

type transitionResponse struct {
	Allowed         bool     `json:"allowed"`
	Reason          string   `json:"reason,omitempty"`
	BlockedBy       string   `json:"blockedBy,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
	RequiredActions []string `json:"requiredActions,omitempty"`
	SLACompliant    *bool    `json:"slaCompliant,omitempty"`
}

type milestoneRequest struct {
	Type           string         `json:"type"`
	IdempotencyKey string         `json:"idempotencyKey"`
	OccurredAt     *time.Time     `json:"occurredAt"`
	Payload        map[string]any `json:"payload"`
}

func toClaimResponse(c claim.Claim) claimResponse {
	return claimResponse{
		ID:               c.ID,
		MemberID:         c.MemberID,
		StewardID:        c.StewardID,
		Title:            c.Title,
		Description:      c.Description,
		Category:         c.Category,
		Priority:         string(c.Priority),
		Status:           string(c.Status),
		StatusChangedAt:  formatTime(c.StatusChangedAt),
		HasDocumentation: c.HasDocumentation,
		CreatedAt:        formatTime(c.CreatedAt),
		UpdatedAt:        formatTime(c.UpdatedAt),
	}
}

func toTransitionResponse(res lifecycle.ValidationResult) transitionResponse {
	out := transitionResponse{
		Allowed:         res.Allowed,
		Reason:          res.Reason,
		BlockedBy:       string(res.BlockedBy),
		Warnings:        res.Warnings,
		RequiredActions: res.RequiredActions,
	}
	if res.Metadata != nil {
		compliant := res.Metadata.SLACompliant
		out.SLACompliant = &compliant
	}
	return out
}

// claimError maps claim package errors onto HTTP statuses.
func (s *Server) claimError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, claim.ErrNotFound):
		writeError(w, http.StatusNotFound, "claim not found")
	case errors.Is(err, claim.ErrInvalidInput), errors.Is(err, claim.ErrInvalidMilestone):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, claim.ErrMilestoneOutOfOrder), errors.Is(err, claim.ErrMilestoneRecorded):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log().Error(action, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not "+action)
	}
}

// loadVisibleClaim fetches the claim and hides it from members who do not
// own it.
func (s *Server) loadVisibleClaim(w http.ResponseWriter, r *http.Request) (claim.Claim, bool) {
	c, err := s.claimService.Get(r.Context(), chi.URLParam(r, "claimID"))
	if err != nil {
		s.claimError(w, err, "load claim")
		return claim.Claim{}, false
	}
	if !roleFrom(r.Context()).AtLeast(auth.RoleSteward) && c.MemberID != userIDFrom(r.Context()) {
		writeError(w, http.StatusNotFound, "claim not found")
		return claim.Claim{}, false
	}
	return c, true
}

func (s *Server) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	var req createClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	memberID := userIDFrom(r.Context())
	if req.MemberID != "" && req.MemberID != memberID {
		if !roleFrom(r.Context()).AtLeast(auth.RoleSteward) {
			writeError(w, http.StatusForbidden, "members may only file their own claims")
			return
		}
		memberID = req.MemberID
	}

	c, err := s.claimService.Create(r.Context(), claim.CreateParams{
		MemberID:         memberID,
		StewardID:        req.StewardID,
		Title:            req.Title,
		Description:      req.Description,
		Category:         req.Category,
		Priority:         claim.Priority(strings.ToLower(req.Priority)),
		HasDocumentation: req.HasDocumentation,
	})
	if err != nil {
		s.claimError(w, err, "create claim")
		return
	}
	writeJSON(w, http.StatusCreated, toClaimResponse(c))
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := claim.Filters{
		MemberID:  q.Get("memberId"),
		StewardID: q.Get("stewardId"),
		Priority:  claim.Priority(q.Get("priority")),
		SortKey:   q.Get("sort"),
		SortOrder: q.Get("order"),
	}
	if v := q.Get("status"); v != "" {
		status, ok := lifecycle.ParseStatus(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status "+v)
			return
		}
		filters.Status = status
	}
	if filters.Priority != "" && !filters.Priority.Valid() {
		writeError(w, http.StatusBadRequest, "unknown priority "+string(filters.Priority))
		return
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "page must be a number")
			return
		}
		filters.Page = page
	}
	if v := q.Get("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "pageSize must be a number")
			return
		}
		filters.PageSize = size
	}
	if !roleFrom(r.Context()).AtLeast(auth.RoleSteward) {
		filters.MemberID = userIDFrom(r.Context())
	}

	res, err := s.claimService.List(r.Context(), filters)
	if err != nil {
		s.claimError(w, err, "list claims")
		return
	}
	items := make([]claimResponse, 0, len(res.Items))
	for _, c := range res.Items {
		items = append(items, toClaimResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": res.Total})
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadVisibleClaim(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(c))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadVisibleClaim(w, r)
	if !ok {
		return
	}
	events, err := s.claimService.Timeline(r.Context(), c.ID)
	if err != nil {
		s.claimError(w, err, "load timeline")
		return
	}
	items := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, timelineEventResponse{
			Type:      string(e.Type),
			Timestamp: formatTime(e.Timestamp),
			UserID:    e.UserID,
			Metadata:  e.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) transitionParams(w http.ResponseWriter, r *http.Request) (claim.TransitionParams, bool) {
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return claim.TransitionParams{}, false
	}
	target, ok := lifecycle.ParseStatus(req.TargetStatus)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown target status "+strconv.Quote(req.TargetStatus))
		return claim.TransitionParams{}, false
	}
	return claim.TransitionParams{
		ClaimID:                  chi.URLParam(r, "claimID"),
		ActorID:                  userIDFrom(r.Context()),
		ActorRole:                roleFrom(r.Context()),
		TargetStatus:             target,
		HasRequiredDocumentation: req.HasRequiredDocumentation,
		Notes:                    req.Notes,
	}, true
}

// handleTransition answers 200 when the claim moved. A blocked transition is
// not an error: the decision comes back with 403 for role failures and 409
// for every other guard.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	params, ok := s.transitionParams(w, r)
	if !ok {
		return
	}
	res, err := s.transitionService.Transition(r.Context(), params)
	if err != nil {
		s.claimError(w, err, "transition claim")
		return
	}
	status := http.StatusOK
	if !res.Allowed {
		status = http.StatusConflict
		if res.BlockedBy == lifecycle.CheckRole {
			status = http.StatusForbidden
		}
	}
	writeJSON(w, status, toTransitionResponse(res))
}

func (s *Server) handlePreviewTransition(w http.ResponseWriter, r *http.Request) {
	params, ok := s.transitionParams(w, r)
	if !ok {
		return
	}
	res, err := s.transitionService.Preview(r.Context(), params)
	if err != nil {
		s.claimError(w, err, "preview transition")
		return
	}
	writeJSON(w, http.StatusOK, toTransitionResponse(res))
}

// handleRecordMilestone takes the idempotency key from the body or the
// Idempotency-Key header. A replayed key answers 200 with recorded=false.
func (s *Server) handleRecordMilestone(w http.ResponseWriter, r *http.Request) {
	var req milestoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}
	mr := claim.MilestoneRequest{
		ClaimID:        chi.URLParam(r, "claimID"),
		Type:           sla.EventType(strings.ToLower(req.Type)),
		ActorID:        userIDFrom(r.Context()),
		IdempotencyKey: key,
		Payload:        req.Payload,
	}
	if req.OccurredAt != nil {
		mr.OccurredAt = req.OccurredAt.UTC()
	}

	recorded, err := s.milestoneService.Record(r.Context(), mr)
	if err != nil {
		s.claimError(w, err, "record milestone")
		return
	}
	status := http.StatusCreated
	if !recorded {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"recorded": recorded})
}
