// Package filter narrows extracted articles with per-source keyword rules
// before anything reaches storage. It is pure and performs no I/O.
package filter

import (
	"strings"

	"github.com/tradelens/tradelens/internal/article"
)

// Apply returns the articles that survive the include/exclude keyword
// rules. Matching is a case-insensitive substring search over the
// concatenated headline and content. Exclude rules are evaluated first: any
// exclude match drops the article, even when an include term also matches.
// With at least one include keyword an article must match one of them; with
// none the include check passes vacuously. Empty-string keywords are treated
// as absent. Rule sets with no usable keywords make Apply the identity
// function.
func Apply(articles []article.Article, include, exclude []string) []article.Article {
	if !hasKeywords(include) && !hasKeywords(exclude) {
		return articles
	}

	kept := make([]article.Article, 0, len(articles))
	for _, a := range articles {
		if accepts(a, include, exclude) {
			kept = append(kept, a)
		}
	}
	return kept
}

func accepts(a article.Article, include, exclude []string) bool {
	text := strings.ToLower(a.Headline + " " + a.Content)

	for _, kw := range exclude {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}

	if !hasKeywords(include) {
		return true
	}
	for _, kw := range include {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func hasKeywords(kws []string) bool {
	for _, kw := range kws {
		if kw != "" {
			return true
		}
	}
	return false
}
