// Package api provides the REST API server for TradeLens.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tradelens/tradelens/internal/article"
	"github.com/tradelens/tradelens/internal/ingest"
	"github.com/tradelens/tradelens/internal/logbook"
	"github.com/tradelens/tradelens/internal/source"
)

// CycleRunner triggers one ingestion cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (ingest.CycleResult, error)
}

// SourceRegistry manages source configuration.
type SourceRegistry interface {
	List(ctx context.Context) ([]source.Source, error)
	Create(ctx context.Context, s source.Source) (source.Source, error)
	Update(ctx context.Context, id primitive.ObjectID, p source.Patch) (source.Source, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// FeedStore serves persisted articles, newest first.
type FeedStore interface {
	RecentArticles(ctx context.Context, limit int64) ([]article.Article, error)
}

// EventStore serves persisted activity events, newest first.
type EventStore interface {
	RecentEvents(ctx context.Context, limit int64) ([]logbook.Event, error)
}

// LiveStreamer runs the push-path pipeline against a socket feed.
type LiveStreamer interface {
	Stream(ctx context.Context, socketURL string, emit func(article.Article) error) error
}

// Server holds the dependencies for the API.
type Server struct {
	runner       CycleRunner
	registry     SourceRegistry
	feed         FeedStore
	events       EventStore
	live         LiveStreamer
	ingestSecret []byte
	logger       *slog.Logger
}

// NewServer creates a new API Server instance.
func NewServer(runner CycleRunner, registry SourceRegistry, feed FeedStore, events EventStore, live LiveStreamer, ingestSecret string) *Server {
	return &Server{
		runner:       runner,
		registry:     registry,
		feed:         feed,
		events:       events,
		live:         live,
		ingestSecret: []byte(ingestSecret),
		logger:       slog.Default(),
	}
}

// Routes returns the configured http.Handler (ServeMux) for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth())

	// Ingestion trigger (secret-protected)
	mux.HandleFunc("POST /api/ingest/run", s.handleRunIngest())

	// Sources
	mux.HandleFunc("GET /api/sources", s.handleListSources())
	mux.HandleFunc("POST /api/sources", s.handleCreateSource())
	mux.HandleFunc("PATCH /api/sources/{id}", s.handleUpdateSource())
	mux.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource())

	// Feed
	mux.HandleFunc("GET /api/feed", s.handleFeed())
	mux.HandleFunc("GET /api/feed/live", s.handleLiveFeed())

	// Activity log
	mux.HandleFunc("GET /api/logs", s.handleLogs())

	return mux
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// --- Helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// parseLimit reads the limit query parameter, clamped to [1, max].
func parseLimit(r *http.Request, def, max int64) int64 {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
