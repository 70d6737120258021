// Package blend combines LLM relevance with catalog popularity signals into
// the final ranking score.
package blend

import (
	"sort"

	"github.com/wearly/searchd/internal/domain"
)

// Final score weights. Relevance dominates; popularity breaks ties between
// equally relevant products.
const (
	relevanceWeight = 0.70
	voteWeight      = 0.20
	viewWeight      = 0.10
)

// Popularity holds the normalization ceilings sampled from the catalog.
// Both values are floored at 1 by the sampler, so division is always safe.
type Popularity struct {
	MaxViews float64
	MaxVotes float64
}

// Apply computes the final score for every item and re-sorts descending.
// The sort is stable so equal scores keep rerank order.
func Apply(items []domain.RankedItem, pop Popularity) {
	maxViews := pop.MaxViews
	if maxViews < 1 {
		maxViews = 1
	}
	maxVotes := pop.MaxVotes
	if maxVotes < 1 {
		maxVotes = 1
	}

	for i := range items {
		viewScore := float64(items[i].Payload.Views()) / maxViews
		voteScore := float64(items[i].Payload.Votes()) / maxVotes

		items[i].FinalScore = relevanceWeight*items[i].RelevanceScore +
			voteWeight*voteScore +
			viewWeight*viewScore
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].FinalScore > items[b].FinalScore
	})
}
