package api

import (
	"net/http"

	"github.com/tradelens/tradelens/internal/logbook"
)

func (s *Server) handleLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 100, 500)

		events, err := s.events.RecentEvents(r.Context(), limit)
		if err != nil {
			s.logger.Error("load activity log", "error", err)
			respondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		if events == nil {
			events = []logbook.Event{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
	}
}
