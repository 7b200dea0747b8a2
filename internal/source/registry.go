package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tradelens/tradelens/internal/logbook"
)

// ErrNotFound marks a lookup of a source that does not exist. Stores wrap
// it so callers can match with errors.Is.
var ErrNotFound = errors.New("source not found")

// Store is the persistence the registry runs on. ListSources returns
// newest-first by creation time.
type Store interface {
	ListSources(ctx context.Context) ([]Source, error)
	InsertSource(ctx context.Context, s Source) (Source, error)
	GetSource(ctx context.Context, id primitive.ObjectID) (Source, error)
	ReplaceSource(ctx context.Context, s Source) error
	DeleteSource(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// Patch is a partial source update. Nil fields are left unchanged.
type Patch struct {
	Name            *string         `json:"name,omitempty"`
	Kind            *Kind           `json:"kind,omitempty"`
	URL             *string         `json:"url,omitempty"`
	Active          *bool           `json:"active,omitempty"`
	APIKeyEnv       *string         `json:"apiKeyEnv,omitempty"`
	MappingEnabled  *bool           `json:"mappingEnabled,omitempty"`
	FieldMappings   *[]FieldMapping `json:"fieldMappings,omitempty"`
	PollInterval    *time.Duration  `json:"pollInterval,omitempty"`
	IncludeKeywords *[]string       `json:"includeKeywords,omitempty"`
	ExcludeKeywords *[]string       `json:"excludeKeywords,omitempty"`
}

// Registry manages source configuration. It trusts its caller's schema and
// performs no validation of its own; every mutation emits an activity
// event.
type Registry struct {
	store Store
	log   *logbook.Log
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store Store, log *logbook.Log) *Registry {
	return &Registry{store: store, log: log}
}

// List returns all sources, newest first.
func (r *Registry) List(ctx context.Context) ([]Source, error) {
	return r.store.ListSources(ctx)
}

// Create assigns an identity and creation time to the given source and
// persists it.
func (r *Registry) Create(ctx context.Context, s Source) (Source, error) {
	s.ID = primitive.NewObjectID()
	s.CreatedAt = time.Now().UTC()

	created, err := r.store.InsertSource(ctx, s)
	if err != nil {
		return Source{}, fmt.Errorf("create source %q: %w", s.Name, err)
	}
	r.log.Info(ctx, "source created", map[string]any{
		"id":   created.ID.Hex(),
		"name": created.Name,
		"kind": string(created.Kind),
	})
	return created, nil
}

// Update merges the patch into the stored source.
func (r *Registry) Update(ctx context.Context, id primitive.ObjectID, p Patch) (Source, error) {
	s, err := r.store.GetSource(ctx, id)
	if err != nil {
		return Source{}, fmt.Errorf("update source %s: %w", id.Hex(), err)
	}

	applyPatch(&s, p)
	if err := r.store.ReplaceSource(ctx, s); err != nil {
		return Source{}, fmt.Errorf("update source %s: %w", id.Hex(), err)
	}
	r.log.Info(ctx, "source updated", map[string]any{
		"id":   s.ID.Hex(),
		"name": s.Name,
	})
	return s, nil
}

// Delete removes a source by identity. Deleting an absent source is a
// no-op.
func (r *Registry) Delete(ctx context.Context, id primitive.ObjectID) error {
	removed, err := r.store.DeleteSource(ctx, id)
	if err != nil {
		return fmt.Errorf("delete source %s: %w", id.Hex(), err)
	}
	if removed {
		r.log.Info(ctx, "source deleted", map[string]any{"id": id.Hex()})
	}
	return nil
}

func applyPatch(s *Source, p Patch) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Kind != nil {
		s.Kind = *p.Kind
	}
	if p.URL != nil {
		s.URL = *p.URL
	}
	if p.Active != nil {
		s.Active = *p.Active
	}
	if p.APIKeyEnv != nil {
		s.APIKeyEnv = *p.APIKeyEnv
	}
	if p.MappingEnabled != nil {
		s.MappingEnabled = *p.MappingEnabled
	}
	if p.FieldMappings != nil {
		s.FieldMappings = *p.FieldMappings
	}
	if p.PollInterval != nil {
		s.PollInterval = *p.PollInterval
	}
	if p.IncludeKeywords != nil {
		s.IncludeKeywords = *p.IncludeKeywords
	}
	if p.ExcludeKeywords != nil {
		s.ExcludeKeywords = *p.ExcludeKeywords
	}
}
