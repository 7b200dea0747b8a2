package api

import (
	"crypto/subtle"
	"net/http"
)

// IngestResponse is the payload for a completed ingestion trigger.
type IngestResponse struct {
	Success  bool `json:"success"`
	Imported int  `json:"importedCount"`
	Filtered int  `json:"filteredCount"`
}

func (s *Server) handleRunIngest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := r.URL.Query().Get("secret")
		if len(s.ingestSecret) == 0 ||
			subtle.ConstantTimeCompare([]byte(secret), s.ingestSecret) != 1 {
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		res, err := s.runner.RunCycle(r.Context())
		if err != nil {
			s.logger.Error("ingestion cycle failed", "error", err)
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		respondJSON(w, http.StatusOK, IngestResponse{
			Success:  true,
			Imported: res.Imported,
			Filtered: res.Filtered,
		})
	}
}
