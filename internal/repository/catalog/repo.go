// Package catalog persists products in the vector store and serves
// similarity queries over them.
package catalog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/wearly/searchd/internal/db"
	"github.com/wearly/searchd/internal/domain"
)

const (
	vectorField = "vector"
	priceField  = "price_numeric"
)

// store is the consumer interface for the catalog (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Product is a catalog record ready for upsert.
type Product struct {
	ID     string
	Vector []float32
	Fields domain.Payload
}

// Repo implements the catalog repository over a db.Store.
type Repo struct {
	store     store
	indexName string
	keyPrefix string
	vectorDim int

	hnswM           int
	hnswEFConstruct int
}

// Option configures the repository.
type Option func(*Repo)

// WithHNSW overrides the HNSW build parameters used when the index is created.
func WithHNSW(m, efConstruct int) Option {
	return func(r *Repo) {
		r.hnswM = m
		r.hnswEFConstruct = efConstruct
	}
}

// New creates a catalog repository. keyPrefix is the hash key namespace
// (e.g. "product:"), vectorDim the embedding dimension.
func New(s store, indexName, keyPrefix string, vectorDim int, opts ...Option) *Repo {
	r := &Repo{
		store:           s,
		indexName:       indexName,
		keyPrefix:       keyPrefix,
		vectorDim:       vectorDim,
		hnswM:           16,
		hnswEFConstruct: 200,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureIndex creates the catalog FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.indexName, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:            r.indexName,
		Prefixes:        []string{r.keyPrefix},
		VectorField:     vectorField,
		VectorDim:       r.vectorDim,
		HNSWM:           r.hnswM,
		HNSWEFConstruct: r.hnswEFConstruct,
		NumericFields:   []string{priceField, "view_count", "vote_count"},
		TagFields:       []string{"tags"},
		TextFields:      []string{"title"},
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", r.indexName, err)
	}
	return nil
}

// Upsert stores products as hashes under the key prefix. Vectors are encoded
// little-endian float32, matching the index definition.
func (r *Repo) Upsert(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			return fmt.Errorf("product without id")
		}
		if len(p.Vector) != r.vectorDim {
			return fmt.Errorf("product %s: vector dim %d, want %d", p.ID, len(p.Vector), r.vectorDim)
		}

		fields := make(map[string]string, len(p.Fields)+1)
		for k, v := range p.Fields {
			fields[k] = v
		}
		fields[vectorField] = encodeVector(p.Vector)

		items = append(items, db.HashSetItem{Key: r.key(p.ID), Fields: fields})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d products: %w", len(products), err)
	}
	return nil
}

// Delete removes a product by ID.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	return nil
}

// QueryTopK runs a KNN query with an optional price pre-filter and returns
// candidates ordered by similarity. The vector field is excluded from
// returned payloads.
func (r *Repo) QueryTopK(ctx context.Context, vector []float32, price domain.PriceIntent, k int) ([]domain.Candidate, error) {
	q := &db.KNNQuery{
		IndexName: r.indexName,
		Vector:    vector,
		K:         k,
	}
	if price.HasBounds() {
		q.Range = &db.NumericRange{Field: priceField, Min: price.Min, Max: price.Max}
	}

	result, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(result.Entries))
	for _, entry := range result.Entries {
		payload := domain.Payload(entry.Fields)
		delete(payload, vectorField)
		candidates = append(candidates, domain.Candidate{
			ID:      strings.TrimPrefix(entry.Key, r.keyPrefix),
			Score:   entry.Score,
			Payload: payload,
		})
	}
	return candidates, nil
}

// Count returns the number of indexed products.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName, "*")
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// SamplePopularity scans up to sampleSize products and returns the maximum
// view and vote counters observed, each floored at 1 so they are safe to
// divide by.
func (r *Repo) SamplePopularity(ctx context.Context, sampleSize int) (maxViews, maxVotes float64, err error) {
	maxViews, maxVotes = 1, 1

	keys, err := r.store.Scan(ctx, r.keyPrefix+"*")
	if err != nil {
		return maxViews, maxVotes, fmt.Errorf("scan products: %w", err)
	}
	if len(keys) == 0 {
		return maxViews, maxVotes, nil
	}
	if sampleSize > 0 && len(keys) > sampleSize {
		keys = keys[:sampleSize]
	}

	payloads, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return maxViews, maxVotes, fmt.Errorf("fetch sample: %w", err)
	}

	for _, fields := range payloads {
		p := domain.Payload(fields)
		maxViews = math.Max(maxViews, float64(p.Views()))
		maxVotes = math.Max(maxVotes, float64(p.Votes()))
	}
	return maxViews, maxVotes, nil
}

func (r *Repo) key(id string) string {
	return r.keyPrefix + id
}

func encodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
