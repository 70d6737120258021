package retrieve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wearly/searchd/internal/domain"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.vector, f.err
}

type fakeCatalog struct {
	candidates []domain.Candidate
	err        error
	gotVector  []float32
	gotPrice   domain.PriceIntent
	gotK       int
}

func (f *fakeCatalog) QueryTopK(_ context.Context, vector []float32, price domain.PriceIntent, k int) ([]domain.Candidate, error) {
	f.gotVector = vector
	f.gotPrice = price
	f.gotK = k
	return f.candidates, f.err
}

func TestCandidateLimit(t *testing.T) {
	tests := []struct {
		limit  int
		rerank bool
		want   int
	}{
		{10, true, 30},
		{5, true, 15},
		{15, true, 30}, // capped
		{50, true, 30}, // capped
		{10, false, 10},
		{50, false, 50},
		{1, true, 3},
	}
	for _, tc := range tests {
		got := CandidateLimit(tc.limit, tc.rerank)
		if got != tc.want {
			t.Errorf("CandidateLimit(%d, %v) = %d, want %d", tc.limit, tc.rerank, got, tc.want)
		}
	}
}

func TestRetrieve_Success(t *testing.T) {
	cat := &fakeCatalog{candidates: []domain.Candidate{{ID: "p1", Score: 0.9}}}
	s := New(&fakeEmbedder{vector: []float32{1, 2}}, cat)

	minP := 500.0
	got, err := s.Retrieve(context.Background(), "hoodies", domain.PriceIntent{Min: &minP}, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("unexpected candidates: %v", got)
	}
	if cat.gotK != 30 {
		t.Errorf("expected k=30, got %d", cat.gotK)
	}
	if cat.gotPrice.Min == nil || *cat.gotPrice.Min != 500 {
		t.Errorf("price intent not forwarded: %+v", cat.gotPrice)
	}
	if len(cat.gotVector) != 2 {
		t.Errorf("vector not forwarded: %v", cat.gotVector)
	}
}

func TestRetrieve_NilCandidatesBecomeEmpty(t *testing.T) {
	s := New(&fakeEmbedder{vector: []float32{1}}, &fakeCatalog{candidates: nil})

	got, err := s.Retrieve(context.Background(), "x", domain.PriceIntent{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil slice")
	}
	if len(got) != 0 {
		t.Errorf("expected empty, got %v", got)
	}
}

func TestRetrieve_EmbeddingErrorWrapped(t *testing.T) {
	embErr := fmt.Errorf("api down: %w", domain.ErrEmbeddingProviderError)
	s := New(&fakeEmbedder{err: embErr}, &fakeCatalog{})

	_, err := s.Retrieve(context.Background(), "x", domain.PriceIntent{}, 10)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Error("embedding failure should keep its provider identity")
	}
}

func TestRetrieve_StoreErrorWrapped(t *testing.T) {
	s := New(&fakeEmbedder{vector: []float32{1}}, &fakeCatalog{err: errors.New("connection refused")})

	_, err := s.Retrieve(context.Background(), "x", domain.PriceIntent{}, 10)
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}
