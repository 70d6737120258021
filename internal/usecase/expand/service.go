// Package expand turns raw user queries into structured search intent via
// an LLM, with caching and a deterministic fallback.
package expand

import (
	"context"

	"go.uber.org/zap"

	"github.com/wearly/searchd/internal/cache"
	"github.com/wearly/searchd/internal/domain"
	"github.com/wearly/searchd/internal/logger"
	"github.com/wearly/searchd/internal/metrics"
	"github.com/wearly/searchd/pkg/lenientjson"
)

const maxTokens = 400

// completer abstracts the LLM fallback chain.
type completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Service expands queries. Expansion never fails: any LLM or parse problem
// degrades to domain.FallbackExpansion.
type Service struct {
	llm   completer
	cache *cache.Cache[domain.Expansion]
}

// New creates an expansion service.
func New(llm completer, c *cache.Cache[domain.Expansion]) *Service {
	return &Service{llm: llm, cache: c}
}

// rawExpansion tolerates the field-name drift seen across models.
type rawExpansion struct {
	SearchIntent      string   `json:"search_intent"`
	Intent            string   `json:"intent"`
	ProductCategories []string `json:"product_categories"`
	Categories        []string `json:"categories"`
	KeyAttributes     []string `json:"key_attributes"`
	Attributes        []string `json:"attributes"`
	ContextClues      string   `json:"context_clues"`
	SemanticExpansion string   `json:"semantic_expansion"`
	Expansion         string   `json:"expansion"`
}

// Expand returns the structured expansion for a query.
func (s *Service) Expand(ctx context.Context, query string) domain.Expansion {
	key := cache.Key(query)
	if exp, ok := s.cache.Get(key); ok {
		metrics.CacheTotal.WithLabelValues("expansion", "hit").Inc()
		return exp
	}
	metrics.CacheTotal.WithLabelValues("expansion", "miss").Inc()

	log := logger.FromContext(ctx)

	out, err := s.llm.Complete(ctx, buildPrompt(query), maxTokens)
	if err != nil {
		log.Warn("query expansion failed, using fallback",
			zap.String("query", query),
			zap.Error(err))
		return domain.FallbackExpansion(query)
	}

	var raw rawExpansion
	if err := lenientjson.DecodeObject(out, &raw); err != nil {
		log.Warn("query expansion returned unparsable JSON, using fallback",
			zap.String("query", query),
			zap.Error(err))
		return domain.FallbackExpansion(query)
	}

	exp := normalize(raw, query)
	s.cache.Set(key, exp)
	return exp
}

// normalize applies field aliases and backfills gaps from the raw query, so
// downstream stages always see a complete expansion.
func normalize(raw rawExpansion, query string) domain.Expansion {
	exp := domain.Expansion{
		Intent:            firstNonEmpty(raw.SearchIntent, raw.Intent),
		Categories:        firstNonEmptySlice(raw.ProductCategories, raw.Categories),
		Attributes:        firstNonEmptySlice(raw.KeyAttributes, raw.Attributes),
		ContextClues:      raw.ContextClues,
		SemanticExpansion: firstNonEmpty(raw.SemanticExpansion, raw.Expansion),
	}

	if exp.Intent == "" {
		exp.Intent = query
	}
	if len(exp.Categories) == 0 {
		exp.Categories = []string{query}
	}
	if exp.SemanticExpansion == "" {
		exp.SemanticExpansion = query
	}
	return exp
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptySlice(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
