package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/tradelens/tradelens/internal/article"
	"github.com/tradelens/tradelens/internal/fetch"
	"github.com/tradelens/tradelens/internal/logbook"
)

// Listener opens a socket subscription and feeds each inbound message to
// the handler. fetch.Listen is the production implementation.
type Listener func(ctx context.Context, socketURL string, handler fetch.MessageHandler) error

// Live is the push path: each inbound socket message runs extraction and
// sentiment synchronously to produce one fully-formed article, delivered to
// the consumer without a persistence step.
type Live struct {
	extractor ArticleExtractor
	analyzer  SentimentAnalyzer
	log       *logbook.Log
	listen    Listener
}

// NewLive creates the push-path pipeline.
func NewLive(extractor ArticleExtractor, analyzer SentimentAnalyzer, log *logbook.Log) *Live {
	return &Live{
		extractor: extractor,
		analyzer:  analyzer,
		log:       log,
		listen:    fetch.Listen,
	}
}

// HandleMessage converts one socket message into one scored article. One
// message is assumed to carry one article; only the first extracted record
// is used. The consumer is waiting on a result, so any stage failure fails
// the whole message; there is no log-and-continue here.
func (l *Live) HandleMessage(ctx context.Context, msg []byte) (article.Article, error) {
	articles, err := l.extractor.Extract(ctx, msg, nil)
	if err != nil {
		return article.Article{}, fmt.Errorf("live extraction: %w", err)
	}
	if len(articles) == 0 {
		return article.Article{}, fmt.Errorf("live extraction produced no article")
	}

	a := articles[0]
	sent, err := l.analyzer.Analyze(ctx, a.Ticker, a.Headline, a.Content)
	if err != nil {
		return article.Article{}, fmt.Errorf("live sentiment: %w", err)
	}
	a.Sentiment = &sent
	a.PublishedAt = time.Now().UTC()
	return a, nil
}

// Stream subscribes to the socket at socketURL and emits one scored article
// per inbound message. Messages are handled one at a time; a second message
// arriving mid-pipeline queues behind the first. Stream returns when the
// consumer's ctx is cancelled, the upstream socket closes or errors, or a
// message fails the pipeline.
func (l *Live) Stream(ctx context.Context, socketURL string, emit func(article.Article) error) error {
	l.log.Info(ctx, "live feed opened", map[string]any{"url": socketURL})
	defer l.log.Info(ctx, "live feed closed", map[string]any{"url": socketURL})

	return l.listen(ctx, socketURL, func(ctx context.Context, msg []byte) error {
		a, err := l.HandleMessage(ctx, msg)
		if err != nil {
			return err
		}
		return emit(a)
	})
}
