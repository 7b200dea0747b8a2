package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tradelens/tradelens/internal/source"
)

// ListSources returns all configured sources, newest first by creation
// time.
func (s *Store) ListSources(ctx context.Context) ([]source.Source, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.sources.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer cursor.Close(ctx)

	var out []source.Source
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return out, nil
}

// InsertSource persists a new source record.
func (s *Store) InsertSource(ctx context.Context, src source.Source) (source.Source, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.sources.InsertOne(ctx, src); err != nil {
		return source.Source{}, fmt.Errorf("insert source: %w", err)
	}
	return src, nil
}

// GetSource loads one source by identity.
func (s *Store) GetSource(ctx context.Context, id primitive.ObjectID) (source.Source, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var src source.Source
	err := s.sources.FindOne(ctx, bson.M{"_id": id}).Decode(&src)
	if err == mongo.ErrNoDocuments {
		return source.Source{}, fmt.Errorf("source %s: %w", id.Hex(), source.ErrNotFound)
	}
	if err != nil {
		return source.Source{}, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// ReplaceSource overwrites the stored source with the given record.
func (s *Store) ReplaceSource(ctx context.Context, src source.Source) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.sources.ReplaceOne(ctx, bson.M{"_id": src.ID}, src)
	if err != nil {
		return fmt.Errorf("replace source: %w", err)
	}
	return nil
}

// DeleteSource removes a source by identity, reporting whether a record was
// actually removed.
func (s *Store) DeleteSource(ctx context.Context, id primitive.ObjectID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.sources.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	return res.DeletedCount > 0, nil
}
