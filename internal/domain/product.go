package domain

import (
	"strconv"
	"strings"
)

// Payload is a product record as stored in the catalog index. The catalog has
// grown through two ingestion generations with different field names, so all
// access goes through accessor methods that try the known aliases in order.
type Payload map[string]string

func (p Payload) first(keys ...string) string {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

// Title returns the product title ("title", falling back to "name").
func (p Payload) Title() string { return p.first("title", "name") }

// Description returns the product description ("description", falling back
// to "short_description").
func (p Payload) Description() string { return p.first("description", "short_description") }

// Headline returns the marketing headline, if any.
func (p Payload) Headline() string { return p.first("headline_description", "headline") }

// Tags returns the tag string ("tags", falling back to "auto_tags").
func (p Payload) Tags() string { return p.first("tags", "auto_tags") }

// ImageURL returns the main image URL ("image_url", falling back to "main_image").
func (p Payload) ImageURL() string { return p.first("image_url", "main_image") }

// ProductURL returns the outbound product URL.
func (p Payload) ProductURL() string { return p.first("product_url") }

// Price returns the numeric price ("price_numeric", falling back to "price").
// Thousands separators and stray spaces are tolerated; unparsable values
// yield zero.
func (p Payload) Price() float64 {
	return parsePrice(p.first("price_numeric", "price"))
}

// Views returns the view counter, zero if absent.
func (p Payload) Views() int { return parseCount(p["view_count"]) }

// Votes returns the vote counter, zero if absent.
func (p Payload) Votes() int { return parseCount(p["vote_count"]) }

func parsePrice(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseCount(s string) int {
	if s == "" {
		return 0
	}
	// Counters occasionally arrive as floats from older ingests.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// Candidate is a single vector-store hit prior to reranking.
type Candidate struct {
	ID      string
	Score   float64 // cosine similarity in [0,1]
	Payload Payload
}

// RankedItem is a candidate augmented with reranking output and the final
// blended score. It lives only for the duration of one request.
type RankedItem struct {
	Candidate
	RelevanceScore float64
	Reasoning      string
	FinalScore     float64
}
