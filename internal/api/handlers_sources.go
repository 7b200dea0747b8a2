package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tradelens/tradelens/internal/source"
)

func (s *Server) handleListSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.registry.List(r.Context())
		if err != nil {
			s.logger.Error("list sources", "error", err)
			respondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		if sources == nil {
			sources = []source.Source{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
	}
}

func (s *Server) handleCreateSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req source.Source
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name == "" || req.URL == "" {
			respondError(w, http.StatusBadRequest, "name and url are required")
			return
		}
		switch req.Kind {
		case source.KindPoll, source.KindPush:
		case "":
			req.Kind = source.KindPoll
		default:
			respondError(w, http.StatusBadRequest, "kind must be poll or push")
			return
		}

		created, err := s.registry.Create(r.Context(), req)
		if err != nil {
			s.logger.Error("create source", "error", err)
			respondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		respondJSON(w, http.StatusCreated, created)
	}
}

func (s *Server) handleUpdateSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid source id")
			return
		}

		var patch source.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if patch.Kind != nil {
			switch *patch.Kind {
			case source.KindPoll, source.KindPush:
			default:
				respondError(w, http.StatusBadRequest, "kind must be poll or push")
				return
			}
		}

		updated, err := s.registry.Update(r.Context(), id, patch)
		if errors.Is(err, source.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Source not found")
			return
		}
		if err != nil {
			s.logger.Error("update source", "id", id.Hex(), "error", err)
			respondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		respondJSON(w, http.StatusOK, updated)
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid source id")
			return
		}

		if err := s.registry.Delete(r.Context(), id); err != nil {
			s.logger.Error("delete source", "id", id.Hex(), "error", err)
			respondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
