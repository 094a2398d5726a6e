package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/claim"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/lifecycle"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/report"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/signal"
	"github.com/anungis437/Union-Eyes-app-v1-sub013/sla"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "userID"
	ctxKeyRole   ctxKey = "role"
)

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type claimService interface {
	Create(ctx context.Context, params claim.CreateParams) (claim.Claim, error)
	List(ctx context.Context, filters claim.Filters) (claim.ListResult, error)
	Get(ctx context.Context, id string) (claim.Claim, error)
	Timeline(ctx context.Context, id string) ([]sla.Event, error)
}

type transitionService interface {
	Transition(ctx context.Context, params claim.TransitionParams) (lifecycle.ValidationResult, error)
	Preview(ctx context.Context, params claim.TransitionParams) (lifecycle.ValidationResult, error)
}

type milestoneService interface {
	Record(ctx context.Context, req claim.MilestoneRequest) (bool, error)
}

type signalService interface {
	List(ctx context.Context, claimID string, onlyOpen bool) ([]signal.Record, error)
	Raise(ctx context.Context, params signal.CreateParams) (signal.Record, error)
	Resolve(ctx context.Context, signalID, actorID string) (signal.Record, error)
}

type slaReporter interface {
	ClaimStatus(ctx context.Context, claimID string) (sla.CaseAssessment, error)
	Assess(ctx context.Context) (report.Report, error)
}

type httpObserver interface {
	ObserveHTTP(method, route string, code int, took time.Duration)
}

// Server exposes the claim services over HTTP.
type Server struct {
	authService       authService
	claimService      claimService
	transitionService transitionService
	milestoneService  milestoneService
	signalService     signalService
	reporter          slaReporter
	metrics           httpObserver
	metricsHandler    http.Handler
	logger            *zap.Logger
}

func (s *Server) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

// Routes builds the router. Everything under /api except registration and
// login requires a bearer token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/api/claims", func(r chi.Router) {
			r.Get("/", s.handleListClaims)
			r.Post("/", s.handleCreateClaim)

			r.Route("/{claimID}", func(r chi.Router) {
				r.Get("/", s.handleGetClaim)
				r.Get("/timeline", s.handleTimeline)
				r.Get("/sla", s.handleClaimSLA)

				r.Group(func(r chi.Router) {
					r.Use(requireRole(auth.RoleSteward))
					r.Post("/transitions", s.handleTransition)
					r.Post("/transitions/preview", s.handlePreviewTransition)
					r.Post("/milestones", s.handleRecordMilestone)
					r.Get("/signals", s.handleListSignals)
				})
				r.With(requireRole(auth.RoleAdmin)).Post("/signals", s.handleRaiseSignal)
			})
		})

		r.With(requireRole(auth.RoleSteward)).Patch("/api/signals/{signalID}", s.handleResolveSignal)
		r.With(requireRole(auth.RoleSteward)).Get("/api/sla/report", s.handleSLAReport)
	})

	return r
}

// instrument records latency per route pattern so that claim ids do not
// explode label cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		took := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		if s.metrics != nil {
			s.metrics.ObserveHTTP(r.Method, route, code, took)
		}
		s.log().Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", code),
			zap.Duration("took", took),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, role, ok := s.identify(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) identify(r *http.Request) (string, auth.Role, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" || s.authService == nil {
		return "", "", false
	}
	userID, role, err := s.authService.VerifyToken(strings.TrimSpace(token))
	if err != nil {
		return "", "", false
	}
	return userID, role, true
}

func requireRole(min auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !roleFrom(r.Context()).AtLeast(min) {
				writeError(w, http.StatusForbidden, "requires role "+string(min))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

func roleFrom(ctx context.Context) auth.Role {
	role, _ := ctx.Value(ctxKeyRole).(auth.Role)
	return role
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}
