// Package source defines configured news origins and the registry that
// manages them.
package source

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind is the transport a source is consumed over.
type Kind string

const (
	// KindPoll sources are fetched over HTTP once per ingestion cycle.
	KindPoll Kind = "poll"
	// KindPush sources deliver messages over a persistent socket and are
	// consumed on demand, outside the scheduled cycle.
	KindPush Kind = "push"
)

// FieldMapping maps one declared article field to the name the source uses
// for it. Mappings are hints for the extraction capability, not a schema.
type FieldMapping struct {
	Field       string `bson:"field" json:"field"`
	SourceField string `bson:"source_field" json:"sourceField"`
}

// Source is a configured origin of news. A poll source's URL is an HTTP
// endpoint; a push source's URL is a socket endpoint.
type Source struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name            string             `bson:"name" json:"name"`
	Kind            Kind               `bson:"kind" json:"kind"`
	URL             string             `bson:"url" json:"url"`
	Active          bool               `bson:"active" json:"active"`
	CreatedAt       time.Time          `bson:"created_at" json:"createdAt"`
	APIKeyEnv       string             `bson:"api_key_env,omitempty" json:"apiKeyEnv,omitempty"`
	MappingEnabled  bool               `bson:"mapping_enabled" json:"mappingEnabled"`
	FieldMappings   []FieldMapping     `bson:"field_mappings,omitempty" json:"fieldMappings,omitempty"`
	PollInterval    time.Duration      `bson:"poll_interval,omitempty" json:"pollInterval,omitempty"`
	IncludeKeywords []string           `bson:"include_keywords,omitempty" json:"includeKeywords,omitempty"`
	ExcludeKeywords []string           `bson:"exclude_keywords,omitempty" json:"excludeKeywords,omitempty"`
}

// Mappings returns the field mappings when mapping is enabled, nil
// otherwise.
func (s *Source) Mappings() []FieldMapping {
	if !s.MappingEnabled {
		return nil
	}
	return s.FieldMappings
}
