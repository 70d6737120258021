// Package retrieve embeds the expanded query and fetches ranking candidates
// from the catalog.
package retrieve

import (
	"context"
	"fmt"

	"github.com/wearly/searchd/internal/domain"
)

// maxCandidates caps the pool handed to reranking. Candidates beyond this
// mostly add prompt tokens, not recall.
const maxCandidates = 30

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type catalog interface {
	QueryTopK(ctx context.Context, vector []float32, price domain.PriceIntent, k int) ([]domain.Candidate, error)
}

// Service turns query text into a candidate pool.
type Service struct {
	embedder embedder
	catalog  catalog
}

// New creates a retrieval service.
func New(e embedder, c catalog) *Service {
	return &Service{embedder: e, catalog: c}
}

// CandidateLimit returns the pool size for a request. When reranking is
// active the pool is over-fetched (3x the response limit, capped) so the
// reranker has candidates to reject.
func CandidateLimit(limit int, rerank bool) int {
	if !rerank {
		return limit
	}
	k := limit * 3
	if k > maxCandidates {
		k = maxCandidates
	}
	return k
}

// Retrieve embeds text and returns the top-k candidates. Both embedding and
// vector store failures are wrapped with domain.ErrRetrievalUnavailable;
// embedding failures keep their domain.ErrEmbeddingProviderError identity
// underneath. The returned slice is never nil on success.
func (s *Service) Retrieve(ctx context.Context, text string, price domain.PriceIntent, k int) ([]domain.Candidate, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrRetrievalUnavailable, err)
	}

	candidates, err := s.catalog.QueryTopK(ctx, vector, price, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)
	}
	if candidates == nil {
		candidates = []domain.Candidate{}
	}
	return candidates, nil
}
