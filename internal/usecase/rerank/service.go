// Package rerank scores candidates against the user's query with an LLM and
// enforces product-type matches, falling back to a similarity-order heuristic
// when the LLM cannot be used.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wearly/searchd/internal/domain"
	"github.com/wearly/searchd/internal/logger"
	"github.com/wearly/searchd/pkg/lenientjson"
)

const (
	// promptBudget caps how many candidates are surfaced to the LLM.
	promptBudget = 15
	maxTokens    = 600

	// typedThreshold applies when the query names a known product type,
	// untypedThreshold otherwise.
	typedThreshold   = 0.8
	untypedThreshold = 0.6

	// fallbackTopK limits the heuristic result when the LLM answered but
	// nothing survived filtering.
	fallbackTopK = 5
)

// productTypes is the vocabulary for strict type enforcement. Matching is a
// plain substring check against the lowercased query.
var productTypes = []string{
	"hoodie", "hoodies", "t-shirt", "tshirt", "tee", "shirt", "dress", "pants", "jeans",
	"jacket", "bag", "backpack", "shoes", "sneakers", "watch", "skincare", "makeup", "cream",
}

// DetectProductType returns the first vocabulary entry found in the query,
// or empty when none matches.
func DetectProductType(query string) string {
	q := strings.ToLower(query)
	for _, pt := range productTypes {
		if strings.Contains(q, pt) {
			return pt
		}
	}
	return ""
}

type completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Service reranks candidate pools. Reranking never fails: LLM or parse
// problems degrade to the heuristic ranking.
type Service struct {
	llm completer
}

// New creates a reranking service.
func New(llm completer) *Service {
	return &Service{llm: llm}
}

// promptProduct is the compact candidate representation sent to the LLM.
type promptProduct struct {
	I    int    `json:"i"`
	Name string `json:"name"`
	Desc string `json:"desc"`
	Tags string `json:"tags"`
}

// rankedOutput tolerates both the short and long field spellings models emit.
type rankedOutput struct {
	I      *int     `json:"i"`
	Index  *int     `json:"index"`
	S      *float64 `json:"s"`
	Score  *float64 `json:"score"`
	R      string   `json:"r"`
	Reason string   `json:"reason"`
}

// Rerank scores candidates and returns at most topK items ordered by the
// LLM's preference. Items below the relevance threshold are dropped, and when
// the query names a product type, items whose text never mentions it are
// dropped regardless of score.
func (s *Service) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) []domain.RankedItem {
	if len(candidates) == 0 {
		return []domain.RankedItem{}
	}

	log := logger.FromContext(ctx)
	productType := DetectProductType(query)

	out, err := s.llm.Complete(ctx, buildPrompt(query, candidates, productType), maxTokens)
	if err != nil {
		log.Warn("rerank LLM call failed, using heuristic ranking",
			zap.String("query", query),
			zap.Error(err))
		return HeuristicRank(query, candidates, topK)
	}

	var ranked []rankedOutput
	if err := lenientjson.DecodeArray(out, &ranked); err != nil {
		log.Warn("rerank output unparsable, using heuristic ranking",
			zap.String("query", query),
			zap.Error(err))
		return HeuristicRank(query, candidates, topK)
	}

	threshold := untypedThreshold
	if productType != "" {
		threshold = typedThreshold
	}

	items := make([]domain.RankedItem, 0, len(ranked))
	for _, r := range ranked {
		idx := pick(r.I, r.Index)
		score := pickF(r.S, r.Score)
		if idx < 0 || idx >= len(candidates) || score < threshold {
			continue
		}

		c := candidates[idx]
		if productType != "" && !mentionsType(c.Payload, productType) {
			continue
		}

		reasoning := r.R
		if reasoning == "" {
			reasoning = r.Reason
		}
		if reasoning == "" {
			reasoning = "Relevant match"
		}

		items = append(items, domain.RankedItem{
			Candidate:      c,
			RelevanceScore: score,
			Reasoning:      reasoning,
		})
		if len(items) >= topK {
			break
		}
	}

	if len(items) == 0 {
		log.Debug("no candidates passed rerank threshold, using heuristic ranking",
			zap.String("query", query))
		k := topK
		if k > fallbackTopK {
			k = fallbackTopK
		}
		return HeuristicRank(query, candidates, k)
	}
	return items
}

// HeuristicRank keeps the similarity order, filtering by every product type
// named in the query, and reuses the similarity score as relevance.
func HeuristicRank(query string, candidates []domain.Candidate, topK int) []domain.RankedItem {
	var types []string
	q := strings.ToLower(query)
	for _, pt := range productTypes {
		if strings.Contains(q, pt) {
			types = append(types, strings.TrimRight(pt, "s"))
		}
	}

	items := make([]domain.RankedItem, 0, topK)
	for _, c := range candidates {
		if len(types) > 0 && !mentionsAnyType(c.Payload, types) {
			continue
		}
		items = append(items, domain.RankedItem{
			Candidate:      c,
			RelevanceScore: c.Score,
			Reasoning:      "Semantic similarity match",
		})
		if len(items) >= topK {
			break
		}
	}
	return items
}

func buildPrompt(query string, candidates []domain.Candidate, productType string) string {
	n := len(candidates)
	if n > promptBudget {
		n = promptBudget
	}

	products := make([]promptProduct, 0, n)
	for i := 0; i < n; i++ {
		p := candidates[i].Payload
		products = append(products, promptProduct{
			I:    i,
			Name: truncate(p.Title(), 80),
			Desc: truncate(p.Description(), 100),
			Tags: truncate(p.Tags(), 50),
		})
	}
	productsJSON, _ := json.Marshal(products)

	typeInstruction := ""
	if productType != "" {
		typeInstruction = fmt.Sprintf(
			"\nCRITICAL: User wants '%s'. ONLY include products that ARE %ss. Score 0 for anything else (sunscreen, tees, bags etc are NOT %ss).",
			productType, productType, productType)
	}

	return fmt.Sprintf(`Rate products for query: %q

Products:
%s
%s
Return JSON array with ONLY products that EXACTLY match what user asked for:
- i = index number from above
- s = score (0.7-1.0, where 1.0 = perfect match, 0 = doesn't match)
- r = reason (5-10 words)

Be STRICT: if user asks for hoodies, only hoodies get scores > 0.
Skip all unrelated products completely.

JSON only:`, query, productsJSON, typeInstruction)
}

// mentionsType checks the singularized type against title, tags and
// description. The literal substring check mirrors the prompt's strictness.
func mentionsType(p domain.Payload, productType string) bool {
	pt := strings.TrimRight(productType, "s")
	haystack := strings.ToLower(p.Title() + " " + p.Tags() + " " + p.Description())
	return strings.Contains(haystack, pt)
}

func mentionsAnyType(p domain.Payload, types []string) bool {
	haystack := strings.ToLower(p.Title() + " " + p.Tags() + " " + p.Description())
	for _, pt := range types {
		if strings.Contains(haystack, pt) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n runes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func pick(values ...*int) int {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return -1
}

func pickF(values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}
