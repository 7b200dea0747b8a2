// Package extract turns raw source payloads into normalized articles using
// the external structured-extraction capability. All uncertainty about the
// payload's shape lives behind this one boundary: the rest of the pipeline
// only ever sees typed records.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tradelens/tradelens/internal/article"
	"github.com/tradelens/tradelens/internal/source"
	"github.com/tradelens/tradelens/pkg/llm"
)

// maxPayloadChars bounds the prompt size for oversized payloads.
const maxPayloadChars = 24_000

// ExtractionError reports that the extraction capability was unreachable or
// returned nothing usable. Poll-path callers treat it the same as an empty
// result: skip the source, log, continue.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string { return fmt.Sprintf("extraction failed: %v", e.Err) }
func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor invokes the structured-extraction capability.
type Extractor struct {
	client llm.Client
}

// NewExtractor creates an Extractor backed by the given LLM client.
func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{client: client}
}

type extractionResult struct {
	Articles []extractedArticle `json:"articles"`
}

type extractedArticle struct {
	Ticker   string `json:"ticker"`
	Headline string `json:"headline"`
	Content  string `json:"content"`
	Momentum struct {
		Volume         int64   `json:"volume"`
		RelativeVolume float64 `json:"relativeVolume"`
		Float          int64   `json:"float"`
		ShortInterest  float64 `json:"shortInterest"`
		PriceAction    string  `json:"priceAction"`
	} `json:"momentum"`
	PublishedAt string `json:"publishedAt"`
}

// Extract converts one raw payload into zero or more normalized articles,
// sentiment absent. The payload may be text, JSON, or XML of arbitrary
// shape; mappings, when provided, disambiguate source layouts the
// capability cannot otherwise infer.
func (e *Extractor) Extract(ctx context.Context, raw []byte, mappings []source.FieldMapping) ([]article.Article, error) {
	payload := string(raw)
	if strings.TrimSpace(payload) == "" {
		return nil, &ExtractionError{Err: fmt.Errorf("empty payload")}
	}
	if len(payload) > maxPayloadChars {
		payload = payload[:maxPayloadChars]
	}

	var result extractionResult
	err := e.client.GenerateJSON(ctx, &llm.Request{
		System: extractorSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildPrompt(payload, mappings)},
		},
	}, &result)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	articles := make([]article.Article, 0, len(result.Articles))
	for _, ea := range result.Articles {
		if ea.Headline == "" && ea.Ticker == "" {
			continue
		}
		a := article.Article{
			Ticker:   strings.ToUpper(strings.TrimSpace(ea.Ticker)),
			Headline: ea.Headline,
			Content:  ea.Content,
			Momentum: article.Momentum{
				Volume:         ea.Momentum.Volume,
				RelativeVolume: ea.Momentum.RelativeVolume,
				Float:          ea.Momentum.Float,
				ShortInterest:  ea.Momentum.ShortInterest,
				PriceAction:    ea.Momentum.PriceAction,
			},
			PublishedAt: parseTimestamp(ea.PublishedAt),
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func buildPrompt(payload string, mappings []source.FieldMapping) string {
	var sb strings.Builder
	if len(mappings) > 0 {
		sb.WriteString("Field mapping hints (declared field -> name used by this source):\n")
		for _, m := range mappings {
			fmt.Fprintf(&sb, "- %s -> %s\n", m.Field, m.SourceField)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Raw payload:\n")
	sb.WriteString(payload)
	return sb.String()
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

const extractorSystemPrompt = `You convert raw news payloads into normalized stock-news records.

The payload may be plain text, JSON, or XML in any shape. Identify every distinct news item it contains and map each one onto this schema:

{
  "articles": [
    {
      "ticker": "stock ticker symbol, uppercase",
      "headline": "article headline",
      "content": "article body text",
      "momentum": {
        "volume": 0,
        "relativeVolume": 0.0,
        "float": 0,
        "shortInterest": 0.0,
        "priceAction": "short description of price movement, if reported"
      },
      "publishedAt": "ISO 8601 timestamp if the payload carries one, else empty"
    }
  ]
}

Rules:
- Report momentum values exactly as the source states them; use 0 or empty string when a value is absent. Never invent numbers.
- When field mapping hints are provided, use them to locate fields you cannot otherwise identify.
- If the payload contains no recognizable news items, return {"articles": []}.
- Respond with the JSON object only.`
