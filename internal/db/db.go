// Package db defines the storage contract for the product catalog. The store
// is a facade over a Redis 8+ instance with the query engine enabled;
// consumers depend on the narrow sub-interfaces they actually use.
package db

import (
	"context"
	"time"
)

// Store is the database facade combining all sub-interfaces.
type Store interface {
	Pinger
	HashStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides search operations over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// IndexDefinition describes an FT index over hash keys.
type IndexDefinition struct {
	Name     string
	Prefixes []string

	// Vector field settings (HNSW over cosine distance).
	VectorField     string
	VectorDim       int
	HNSWM           int
	HNSWEFConstruct int

	NumericFields []string
	TagFields     []string
	TextFields    []string
}

// NumericRange is an inclusive range pre-filter on a numeric field.
// A nil bound means unbounded on that side.
type NumericRange struct {
	Field string
	Min   *float64
	Max   *float64
}

// KNNQuery describes a top-k vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	Range        *NumericRange
	ReturnFields []string
}

// SearchEntry is a single search hit: the hash key, its similarity score,
// and the returned fields.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// SearchResult holds search hits plus the server-side total.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}
