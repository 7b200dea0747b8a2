// Package article defines the normalized news record that flows through the
// ingestion pipeline. An Article exists in two phases: written without
// sentiment (pending), then patched once its sentiment analysis resolves.
package article

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Momentum is the trading-activity snapshot attached to an article, as
// reported by the source. Values are not independently verified.
type Momentum struct {
	Volume         int64   `bson:"volume" json:"volume"`
	RelativeVolume float64 `bson:"relative_volume" json:"relativeVolume"`
	Float          int64   `bson:"float" json:"float"`
	ShortInterest  float64 `bson:"short_interest" json:"shortInterest"`
	PriceAction    string  `bson:"price_action" json:"priceAction"`
}

// Sentiment is the result of the sentiment-analysis capability for one
// article.
type Sentiment struct {
	Label       string  `bson:"label" json:"sentiment"`
	ImpactScore float64 `bson:"impact_score" json:"impactScore"`
	Summary     string  `bson:"summary" json:"summary"`
}

// Article is the pipeline's canonical unit. A nil Sentiment means analysis
// is still pending (or was abandoned after a failed call), never an error.
type Article struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Source      string             `bson:"source" json:"source"`
	Ticker      string             `bson:"ticker" json:"ticker"`
	Headline    string             `bson:"headline" json:"headline"`
	Content     string             `bson:"content" json:"content"`
	Momentum    Momentum           `bson:"momentum" json:"momentum"`
	PublishedAt time.Time          `bson:"published_at" json:"publishedAt"`
	Sentiment   *Sentiment         `bson:"sentiment,omitempty" json:"sentiment,omitempty"`
}

// Scored reports whether sentiment analysis has resolved for the article.
func (a *Article) Scored() bool {
	return a.Sentiment != nil
}
