package domain

import "fmt"

// Search request bounds.
const (
	MinLimit = 1
	MaxLimit = 50
)

// Mode reports which ranking stages were active for a response.
type Mode string

const (
	// ModeAdvanced means LLM-assisted expansion and reranking were available.
	ModeAdvanced Mode = "advanced"
	// ModeSimple means plain semantic similarity ranking.
	ModeSimple Mode = "simple"
)

// SearchRequest is an immutable search invocation.
type SearchRequest struct {
	Query      string
	Limit      int
	PriceMin   *float64
	PriceMax   *float64
	SkipCache  bool
	SkipRerank bool
}

// Validate checks request bounds.
func (r SearchRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if r.Limit < MinLimit || r.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between %d and %d, got %d",
			ErrInvalidRequest, MinLimit, MaxLimit, r.Limit)
	}
	if r.PriceMin != nil && *r.PriceMin < 0 {
		return fmt.Errorf("%w: priceMin must be non-negative", ErrInvalidRequest)
	}
	if r.PriceMax != nil && *r.PriceMax < 0 {
		return fmt.Errorf("%w: priceMax must be non-negative", ErrInvalidRequest)
	}
	return nil
}

// PriceIntent holds optional price bounds extracted from a query.
// Min <= Max whenever both are present.
type PriceIntent struct {
	Min *float64
	Max *float64
}

// HasBounds reports whether at least one bound is present.
func (p PriceIntent) HasBounds() bool { return p.Min != nil || p.Max != nil }

// Expansion is the LLM's reading of a raw query.
type Expansion struct {
	Intent            string
	Categories        []string
	Attributes        []string
	ContextClues      string
	SemanticExpansion string
}

// FallbackExpansion builds the deterministic expansion used when no LLM
// output is available. SemanticExpansion equals the raw query so retrieval
// stays usable.
func FallbackExpansion(rawQuery string) Expansion {
	return Expansion{
		Intent:            "Find products related to: " + rawQuery,
		Categories:        []string{rawQuery},
		ContextClues:      "General search",
		SemanticExpansion: rawQuery,
	}
}

// ResultItem is one entry of a search response.
type ResultItem struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Headline       string   `json:"headline,omitempty"`
	Price          float64  `json:"price"`
	PriceNumeric   float64  `json:"priceNumeric"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	ProductURL     string   `json:"productUrl,omitempty"`
	Tags           string   `json:"tags,omitempty"`
	Views          int      `json:"views"`
	Votes          int      `json:"votes"`
	Score          float64  `json:"score"`
	RelevanceScore *float64 `json:"relevanceScore,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
	Source         string   `json:"source"`
}

// SearchResponse is the ranked answer to a search request.
type SearchResponse struct {
	Query            string       `json:"query"`
	TotalResults     int          `json:"totalResults"`
	Results          []ResultItem `json:"results"`
	ProcessingTimeMs float64      `json:"processingTimeMs"`
	SearchMode       Mode         `json:"searchMode"`
	Cached           bool         `json:"cached"`
}
