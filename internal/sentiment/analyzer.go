// Package sentiment scores accepted articles with the external
// sentiment-analysis capability, one independent call per article.
package sentiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/tradelens/tradelens/internal/article"
	"github.com/tradelens/tradelens/pkg/llm"
)

// AnalysisError reports a failed sentiment call. It is recoverable at
// article granularity: the article keeps no sentiment and stays pending;
// the pipeline does not retry.
type AnalysisError struct {
	Ticker string
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("sentiment analysis for %s failed: %v", e.Ticker, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Analyzer invokes the sentiment capability.
type Analyzer struct {
	client llm.Client
}

// NewAnalyzer creates an Analyzer backed by the given LLM client.
func NewAnalyzer(client llm.Client) *Analyzer {
	return &Analyzer{client: client}
}

type sentimentResult struct {
	Sentiment   string  `json:"sentiment"`
	ImpactScore float64 `json:"impactScore"`
	Summary     string  `json:"summary"`
}

// Analyze scores one headline and body for the given ticker. Calls for
// different articles are independent and may run concurrently.
func (a *Analyzer) Analyze(ctx context.Context, ticker, headline, content string) (article.Sentiment, error) {
	var result sentimentResult
	err := a.client.GenerateJSON(ctx, &llm.Request{
		System: analyzerSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf("Ticker: %s\nHeadline: %s\n\n%s", ticker, headline, content)},
		},
	}, &result)
	if err != nil {
		return article.Sentiment{}, &AnalysisError{Ticker: ticker, Err: err}
	}

	return article.Sentiment{
		Label:       strings.ToLower(strings.TrimSpace(result.Sentiment)),
		ImpactScore: clamp(result.ImpactScore, -1, 1),
		Summary:     result.Summary,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

const analyzerSystemPrompt = `You are a trading-desk news analyst. Score the likely price impact of one news item on its ticker.

Respond with a JSON object:
{
  "sentiment": "bullish, bearish, or neutral",
  "impactScore": 0.0,
  "summary": "one-sentence takeaway for a trader"
}

impactScore is a number in [-1, 1]: -1 strongly negative for the stock, 0 no expected impact, 1 strongly positive. Respond with the JSON object only.`
