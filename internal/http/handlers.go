package http

import (
	"context"
	"net/http"
	"time"

	"github.com/splvrdge/savr/internal/log"
)

type healthStatus struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	OK(healthStatus{
		Status: "ok",
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
	}).Write(w)
}

// handleReady verifies the database answers within a short deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger == nil {
		OK(healthStatus{Status: "ready"}).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.ErrorContext(r.Context(), "Readiness check failed",
			log.FieldError, err.Error())
		resp := NewJSONResponse().
			Status(http.StatusServiceUnavailable).
			Message("Service not ready").
			Data(healthStatus{Status: "not_ready", Checks: map[string]string{"database": "unreachable"}})
		if !s.production {
			resp.Detail(err)
		}
		resp.Write(w)
		return
	}

	OK(healthStatus{Status: "ready", Checks: map[string]string{"database": "ok"}}).Write(w)
}
