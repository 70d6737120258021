package pipeline

import (
	"context"

	"github.com/wearly/searchd/internal/domain"
)

// Expander turns a raw query into structured intent. It never fails; a
// degraded expansion is still an expansion.
type Expander interface {
	Expand(ctx context.Context, query string) domain.Expansion
}

// Retriever fetches the candidate pool for a query text.
type Retriever interface {
	Retrieve(ctx context.Context, text string, price domain.PriceIntent, k int) ([]domain.Candidate, error)
}

// Reranker orders candidates by relevance to the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) []domain.RankedItem
}
