package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tradelens/tradelens/internal/logbook"
)

// Append adds one activity event to the append-only log collection. Events
// from concurrent writers may land in any order; the timestamp is the
// ordering the reader sees.
func (s *Store) Append(ctx context.Context, e logbook.Event) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.logs.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("append log event: %w", err)
	}
	return nil
}

// RecentEvents returns activity events in reverse-chronological order,
// capped by the caller's limit.
func (s *Store) RecentEvents(ctx context.Context, limit int64) ([]logbook.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.logs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list log events: %w", err)
	}
	defer cursor.Close(ctx)

	var out []logbook.Event
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode log events: %w", err)
	}
	return out, nil
}
