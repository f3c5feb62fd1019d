package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/billdonner/card-engine/pkg/observability"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if err := s.db.Ping(r.Context()); err != nil {
		body["status"] = "degraded"
		body["database"] = fmt.Sprintf("error: %v", err)
	} else {
		body["database"] = "connected"
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	payload, err := s.dashboard.Collect(r.Context())
	if err != nil {
		slog.Error("dashboard collection failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, observability.ErrorPayload(err))
		return
	}
	writeJSON(w, http.StatusOK, payload)
}
