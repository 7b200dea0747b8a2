// Package ingest drives the news pipeline: one scheduled cycle across all
// active poll sources, and the live push path for socket feeds.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tradelens/tradelens/internal/article"
	"github.com/tradelens/tradelens/internal/filter"
	"github.com/tradelens/tradelens/internal/logbook"
	"github.com/tradelens/tradelens/internal/source"
)

// SourceLister supplies the configured sources in registry order.
type SourceLister interface {
	List(ctx context.Context) ([]source.Source, error)
}

// PayloadFetcher retrieves one raw payload for a poll source.
type PayloadFetcher interface {
	Fetch(ctx context.Context, src source.Source) ([]byte, error)
}

// ArticleExtractor converts a raw payload into normalized articles.
type ArticleExtractor interface {
	Extract(ctx context.Context, raw []byte, mappings []source.FieldMapping) ([]article.Article, error)
}

// SentimentAnalyzer scores one article's headline and body.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, ticker, headline, content string) (article.Sentiment, error)
}

// ArticleSink is the two-phase persistence contract: write now, patch
// sentiment when it resolves.
type ArticleSink interface {
	InsertPending(ctx context.Context, a article.Article) (primitive.ObjectID, error)
	AttachSentiment(ctx context.Context, id primitive.ObjectID, s article.Sentiment) error
}

// CycleResult aggregates one orchestration run.
type CycleResult struct {
	Imported int `json:"importedCount"`
	Filtered int `json:"filteredCount"`
}

// Orchestrator runs ingestion cycles. Sources are processed sequentially in
// registry order; the only concurrency is the per-source sentiment fan-out,
// which is joined before the next source starts. This bounds in-flight load
// to one source's worth of sentiment calls and keeps error isolation at
// source granularity.
type Orchestrator struct {
	sources   SourceLister
	fetcher   PayloadFetcher
	extractor ArticleExtractor
	analyzer  SentimentAnalyzer
	sink      ArticleSink
	log       *logbook.Log
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(sources SourceLister, fetcher PayloadFetcher, extractor ArticleExtractor,
	analyzer SentimentAnalyzer, sink ArticleSink, log *logbook.Log) *Orchestrator {
	return &Orchestrator{
		sources:   sources,
		fetcher:   fetcher,
		extractor: extractor,
		analyzer:  analyzer,
		sink:      sink,
		log:       log,
	}
}

// RunCycle executes one full pass over all active poll sources. A failure
// inside one source's processing never aborts the cycle for the rest.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	sources, err := o.sources.List(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("list sources: %w", err)
	}

	var result CycleResult
	for _, src := range sources {
		if !src.Active || src.Kind != source.KindPoll {
			continue
		}

		imported, filtered := o.processSource(ctx, src)
		result.Imported += imported
		result.Filtered += filtered
	}

	if result.Imported > 0 || result.Filtered > 0 {
		o.log.Info(ctx, "ingestion cycle complete", map[string]any{
			"imported": result.Imported,
			"filtered": result.Filtered,
		})
	}
	return result, nil
}

// processSource runs one source through fetch, extract, filter, persist,
// and the sentiment fan-out. All failures, including panics, are converted
// to log entries at this boundary.
func (o *Orchestrator) processSource(ctx context.Context, src source.Source) (imported, filtered int) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error(ctx, "source processing panicked", map[string]any{
				"source": src.Name,
				"error":  fmt.Sprint(r),
			})
			imported, filtered = 0, 0
		}
	}()

	// Joined on every exit, panic included, so no sentiment goroutine ever
	// outlives its source's turn in the cycle.
	var wg sync.WaitGroup
	defer wg.Wait()

	raw, err := o.fetcher.Fetch(ctx, src)
	if err != nil {
		o.log.Warn(ctx, "fetch failed, skipping source", map[string]any{
			"source": src.Name,
			"error":  err.Error(),
		})
		return 0, 0
	}

	articles, err := o.extractor.Extract(ctx, raw, src.Mappings())
	if err != nil {
		o.log.Warn(ctx, "extraction failed, skipping source", map[string]any{
			"source": src.Name,
			"error":  err.Error(),
		})
		return 0, 0
	}

	accepted := filter.Apply(articles, src.IncludeKeywords, src.ExcludeKeywords)
	filtered = len(articles) - len(accepted)

	for _, a := range accepted {
		a.Source = src.Name

		id, err := o.sink.InsertPending(ctx, a)
		if err != nil {
			o.log.Error(ctx, "article persist failed", map[string]any{
				"source": src.Name,
				"ticker": a.Ticker,
				"error":  err.Error(),
			})
			continue
		}
		imported++

		wg.Add(1)
		go func(id primitive.ObjectID, a article.Article) {
			defer wg.Done()
			o.scoreArticle(ctx, id, a)
		}(id, a)
	}
	// Join this source's sentiment fan-out before the next source starts.
	wg.Wait()

	o.log.Info(ctx, "source processed", map[string]any{
		"source":   src.Name,
		"imported": imported,
		"filtered": filtered,
	})
	return imported, filtered
}

// scoreArticle runs one sentiment call and patches the stored article. On
// failure the article stays pending; there is no retry.
func (o *Orchestrator) scoreArticle(ctx context.Context, id primitive.ObjectID, a article.Article) {
	sent, err := o.analyzer.Analyze(ctx, a.Ticker, a.Headline, a.Content)
	if err != nil {
		o.log.Error(ctx, "sentiment analysis failed", map[string]any{
			"article": id.Hex(),
			"ticker":  a.Ticker,
			"error":   err.Error(),
		})
		return
	}
	if err := o.sink.AttachSentiment(ctx, id, sent); err != nil {
		o.log.Error(ctx, "sentiment patch failed", map[string]any{
			"article": id.Hex(),
			"ticker":  a.Ticker,
			"error":   err.Error(),
		})
	}
}
