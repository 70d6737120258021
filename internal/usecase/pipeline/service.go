// Package pipeline orchestrates the ranking stages: price intent parsing,
// query expansion, candidate retrieval, reranking and score blending, with
// result caching and duplicate-request coalescing in front.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wearly/searchd/internal/cache"
	"github.com/wearly/searchd/internal/domain"
	"github.com/wearly/searchd/internal/logger"
	"github.com/wearly/searchd/internal/metrics"
	"github.com/wearly/searchd/internal/usecase/blend"
	"github.com/wearly/searchd/internal/usecase/price"
	"github.com/wearly/searchd/internal/usecase/retrieve"
)

// Service runs the search pipeline.
type Service struct {
	expander  Expander
	retriever Retriever
	reranker  Reranker

	results    *cache.Cache[domain.SearchResponse]
	expansions *cache.Cache[domain.Expansion]

	popularity blend.Popularity
	llmEnabled bool

	group singleflight.Group
}

// Config wires the pipeline dependencies.
type Config struct {
	Expander  Expander
	Retriever Retriever
	Reranker  Reranker

	ResultsCache   *cache.Cache[domain.SearchResponse]
	ExpansionCache *cache.Cache[domain.Expansion]

	Popularity blend.Popularity
	LLMEnabled bool
}

// New creates the pipeline service.
func New(cfg Config) *Service {
	return &Service{
		expander:   cfg.Expander,
		retriever:  cfg.Retriever,
		reranker:   cfg.Reranker,
		results:    cfg.ResultsCache,
		expansions: cfg.ExpansionCache,
		popularity: cfg.Popularity,
		llmEnabled: cfg.LLMEnabled,
	}
}

// SetPopularity replaces the popularity ceilings (startup sampling).
func (s *Service) SetPopularity(pop blend.Popularity) {
	s.popularity = pop
}

// Search executes the pipeline for one request. Identical concurrent
// requests share a single execution.
func (s *Service) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return domain.SearchResponse{}, err
	}

	key := cacheKey(req)

	if !req.SkipCache {
		if resp, ok := s.results.Get(key); ok {
			metrics.CacheTotal.WithLabelValues("results", "hit").Inc()
			metrics.SearchRequestsTotal.WithLabelValues(string(resp.SearchMode), "true").Inc()
			resp.Cached = true
			return resp, nil
		}
		metrics.CacheTotal.WithLabelValues("results", "miss").Inc()
	}

	// The shared execution must not die with the first caller that gives
	// up, so it runs on a cancellation-free copy of the context.
	sharedCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.performSearch(sharedCtx, key, req)
	})

	select {
	case <-ctx.Done():
		return domain.SearchResponse{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.SearchResponse{}, res.Err
		}
		return res.Val.(domain.SearchResponse), nil
	}
}

func (s *Service) performSearch(ctx context.Context, key string, req domain.SearchRequest) (domain.SearchResponse, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	intent, cleanQuery := price.Parse(req.Query)

	// Explicit request bounds override parsed ones per bound.
	if req.PriceMin != nil {
		intent.Min = req.PriceMin
	}
	if req.PriceMax != nil {
		intent.Max = req.PriceMax
	}
	if intent.Min != nil && intent.Max != nil && *intent.Min > *intent.Max {
		intent.Min, intent.Max = intent.Max, intent.Min
	}

	rerankActive := s.llmEnabled && !req.SkipRerank

	searchText := cleanQuery
	if s.llmEnabled {
		exp := s.expander.Expand(ctx, cleanQuery)
		if exp.SemanticExpansion != "" {
			searchText = exp.SemanticExpansion
		}
	}

	k := retrieve.CandidateLimit(req.Limit, rerankActive)
	candidates, err := s.retriever.Retrieve(ctx, searchText, intent, k)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(s.mode()), "false").Inc()
		return domain.SearchResponse{}, fmt.Errorf("retrieve candidates: %w", err)
	}

	var items []domain.RankedItem
	if rerankActive {
		items = s.reranker.Rerank(ctx, cleanQuery, candidates, req.Limit)
		blend.Apply(items, s.popularity)
	} else {
		items = make([]domain.RankedItem, 0, len(candidates))
		for _, c := range candidates {
			items = append(items, domain.RankedItem{
				Candidate:      c,
				RelevanceScore: c.Score,
				FinalScore:     c.Score,
			})
		}
	}

	if len(items) > req.Limit {
		items = items[:req.Limit]
	}

	resp := domain.SearchResponse{
		Query:            req.Query,
		TotalResults:     len(items),
		Results:          buildResults(items, rerankActive),
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		SearchMode:       s.mode(),
		Cached:           false,
	}

	s.results.Set(key, resp)

	metrics.SearchRequestsTotal.WithLabelValues(string(resp.SearchMode), "false").Inc()
	metrics.SearchDuration.WithLabelValues(string(resp.SearchMode)).Observe(time.Since(start).Seconds())

	log.Info("search completed",
		zap.String("query", req.Query),
		zap.String("mode", string(resp.SearchMode)),
		zap.Int("results", resp.TotalResults),
		zap.Float64("duration_ms", resp.ProcessingTimeMs))

	return resp, nil
}

// CacheStats reports both cache states for the diagnostics endpoint.
func (s *Service) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"results":   s.results.Stats(),
		"expansion": s.expansions.Stats(),
	}
}

// ClearCaches drops all cached results and expansions.
func (s *Service) ClearCaches() {
	s.results.Clear()
	s.expansions.Clear()
}

// mode reports whether LLM-assisted stages are available for this service.
// Expansion runs whenever the LLM is enabled, so skipping the rerank alone
// does not downgrade the reported mode.
func (s *Service) mode() domain.Mode {
	if s.llmEnabled {
		return domain.ModeAdvanced
	}
	return domain.ModeSimple
}

func buildResults(items []domain.RankedItem, reranked bool) []domain.ResultItem {
	results := make([]domain.ResultItem, 0, len(items))
	for _, it := range items {
		p := it.Payload
		r := domain.ResultItem{
			ID:           it.ID,
			Title:        p.Title(),
			Description:  p.Description(),
			Headline:     p.Headline(),
			Price:        p.Price(),
			PriceNumeric: p.Price(),
			ImageURL:     p.ImageURL(),
			ProductURL:   p.ProductURL(),
			Tags:         p.Tags(),
			Views:        p.Views(),
			Votes:        p.Votes(),
			Score:        it.FinalScore,
			Reasoning:    it.Reasoning,
			Source:       "catalog",
		}
		if reranked {
			rel := it.RelevanceScore
			r.RelevanceScore = &rel
		}
		results = append(results, r)
	}
	return results
}

func cacheKey(req domain.SearchRequest) string {
	parts := []string{
		strconv.Itoa(req.Limit),
		boundPart(req.PriceMin),
		boundPart(req.PriceMax),
		strconv.FormatBool(req.SkipRerank),
	}
	return cache.Key(req.Query, parts...)
}

func boundPart(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
