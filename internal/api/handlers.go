package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/terra-clan/duewatch/internal/catalog"
	"github.com/terra-clan/duewatch/internal/dashboard"
	"github.com/terra-clan/duewatch/internal/models"
	"github.com/terra-clan/duewatch/internal/session"
	"github.com/terra-clan/duewatch/internal/transport"
	"github.com/terra-clan/duewatch/internal/weeks"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondPipelineError maps pipeline errors to API errors. Session errors
// are checked first since catalog failures may wrap them.
func respondPipelineError(w http.ResponseWriter, err error) {
	var authErr *session.AuthError
	var fetchErr *catalog.CatalogFetchError

	switch {
	case errors.As(err, &authErr):
		respondError(w, http.StatusUnauthorized, "auth_failed", authErr.Message)
	case errors.Is(err, transport.ErrSessionExpired), errors.Is(err, transport.ErrNoSession):
		respondError(w, http.StatusUnauthorized, "session_expired", "session expired, please log in again")
	case errors.Is(err, dashboard.ErrCancelled):
		respondError(w, http.StatusConflict, "cancelled", "refresh was cancelled")
	case errors.Is(err, dashboard.ErrNoSnapshot):
		respondError(w, http.StatusNotFound, "no_data", "no dashboard data yet, refresh first")
	case errors.Is(err, dashboard.ErrInvalidWeek):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.As(err, &fetchErr):
		respondError(w, http.StatusBadGateway, "catalog_unavailable", "course catalog is unavailable")
	default:
		slog.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.checks != nil {
		if failures := s.checks.CheckAll(r.Context()); len(failures) > 0 {
			names := make([]string, 0, len(failures))
			for name, err := range failures {
				slog.Warn("dependency not ready", "dependency", name, "error", err)
				names = append(names, name)
			}
			sort.Strings(names)
			respondError(w, http.StatusServiceUnavailable, "not_ready", "not ready: "+strings.Join(names, ", "))
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Session handlers

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type dashboardResponse struct {
	Session models.Session      `json:"session"`
	View    *dashboard.WeekView `json:"view,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	limitBody(w, r)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return
	}

	if _, err := s.dashboard.Login(r.Context(), req.Email, req.Password); err != nil {
		respondPipelineError(w, err)
		return
	}

	s.respondDashboard(w, r, "", 0)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.dashboard.Logout(r.Context())
	respondJSON(w, http.StatusOK, s.dashboard.Session())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.dashboard.Session())
}

// Dashboard handlers

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.dashboard.Refresh(r.Context()); err != nil {
		respondPipelineError(w, err)
		return
	}
	s.respondDashboard(w, r, r.URL.Query().Get("week"), 0)
}

func (s *Server) handleCancelRefresh(w http.ResponseWriter, r *http.Request) {
	s.dashboard.Cancel()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var nav weeks.Direction
	switch r.URL.Query().Get("nav") {
	case "":
	case "next":
		nav = weeks.Next
	case "previous", "prev":
		nav = weeks.Previous
	default:
		respondError(w, http.StatusBadRequest, "validation_error", "nav must be next or previous")
		return
	}

	s.respondDashboard(w, r, r.URL.Query().Get("week"), nav)
}

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

type snapshotSummary struct {
	ID              string    `json:"id"`
	GeneratedAt     time.Time `json:"generated_at"`
	Courses         int       `json:"courses"`
	Missing         int       `json:"missing"`
	AssignmentsSeen int       `json:"assignments_seen"`
	FailedCourses   []string  `json:"failed_courses,omitempty"`
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			respondError(w, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}

	snaps, err := s.dashboard.History(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list snapshots", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list snapshots")
		return
	}

	out := make([]snapshotSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snapshotSummary{
			ID:              snap.ID,
			GeneratedAt:     snap.GeneratedAt,
			Courses:         len(snap.Courses),
			Missing:         len(snap.Missing),
			AssignmentsSeen: snap.AssignmentsSeen,
			FailedCourses:   snap.FailedCourses,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// respondDashboard reports the session requireSession admitted the request
// with, or the current one on routes it does not guard.
func (s *Server) respondDashboard(w http.ResponseWriter, r *http.Request, week string, nav weeks.Direction) {
	view, err := s.dashboard.View(week, nav)
	if err != nil {
		respondPipelineError(w, err)
		return
	}

	sess, ok := SessionFromContext(r.Context())
	if !ok {
		sess = s.dashboard.Session()
	}
	respondJSON(w, http.StatusOK, dashboardResponse{
		Session: sess,
		View:    view,
	})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
