package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tradelens/tradelens/internal/article"
)

// InsertPending writes an article without sentiment. The article is visible
// to readers immediately; a nil sentiment reads as pending.
func (s *Store) InsertPending(ctx context.Context, a article.Article) (primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	a.ID = primitive.NewObjectID()
	a.Sentiment = nil
	if _, err := s.articles.InsertOne(ctx, a); err != nil {
		return primitive.NilObjectID, fmt.Errorf("insert article: %w", err)
	}
	return a.ID, nil
}

// AttachSentiment patches the sentiment sub-document of an already-stored
// article. No other field is touched; concurrent patches to different
// articles never conflict because each write is addressed by identity.
func (s *Store) AttachSentiment(ctx context.Context, id primitive.ObjectID, sent article.Sentiment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.articles.UpdateByID(ctx, id, bson.M{"$set": bson.M{"sentiment": sent}})
	if err != nil {
		return fmt.Errorf("attach sentiment to %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("attach sentiment: article %s not found", id.Hex())
	}
	return nil
}

// RecentArticles returns the newest stored articles, limited by the
// caller's cap.
func (s *Store) RecentArticles(ctx context.Context, limit int64) ([]article.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "published_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.articles.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer cursor.Close(ctx)

	var out []article.Article
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode articles: %w", err)
	}
	return out, nil
}
