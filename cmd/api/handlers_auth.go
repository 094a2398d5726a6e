package main

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/anungis437/Union-Eyes-app-v1-sub013/auth"
)

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		CreatedAt: formatTime(u.CreatedAt),
	}
}

// handleRegister creates an account. Stewards and admins can only be created
// by an authenticated admin.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role != "" {
		role, ok := auth.ParseRole(string(req.Role))
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown role")
			return
		}
		if role != auth.RoleMember {
			_, callerRole, authed := s.identify(r)
			if !authed || callerRole != auth.RoleAdmin {
				writeError(w, http.StatusForbidden, "only admins may register "+string(role)+" accounts")
				return
			}
		}
		req.Role = role
	}

	user, err := s.authService.Register(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidRegistration):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "email already registered")
		return
	default:
		s.log().Error("register user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not register user")
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.log().Error("login", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not log in")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: res.Token, User: toUserResponse(res.User)})
}
