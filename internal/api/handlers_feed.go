package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tradelens/tradelens/internal/article"
)

func (s *Server) handleFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 50, 200)

		articles, err := s.feed.RecentArticles(r.Context(), limit)
		if err != nil {
			s.logger.Error("load feed", "error", err)
			respondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		if articles == nil {
			articles = []article.Article{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"feed": articles})
	}
}

// handleLiveFeed streams scored articles from a push source as NDJSON, one
// article per line, flushed as each arrives. The response stays open until
// the client disconnects or the upstream socket closes.
func (s *Server) handleLiveFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		socketURL := r.URL.Query().Get("url")
		if socketURL == "" {
			respondError(w, http.StatusBadRequest, "url query parameter is required")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			respondError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		enc := json.NewEncoder(w)
		err := s.live.Stream(r.Context(), socketURL, func(a article.Article) error {
			if err := enc.Encode(a); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})
		// Headers are already sent, so failures can only end the stream.
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("live feed ended", "url", socketURL, "error", err)
		}
	}
}
