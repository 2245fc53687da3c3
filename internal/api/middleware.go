package api

import (
	"log/slog"
	"net/http"
)

// maxBodyBytes bounds request bodies; the only body is a login form
const maxBodyBytes = 1 << 16

// requireSession rejects requests while no course-service session is live
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := s.dashboard.Session()
		if !sess.Authenticated {
			slog.Debug("request without session", "path", r.URL.Path, "state", sess.State)
			respondError(w, http.StatusUnauthorized, "session_expired", "not logged in")
			return
		}

		ctx := ContextWithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limitBody caps the request body size
func limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
}
