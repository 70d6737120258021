package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wearly/searchd/internal/cache"
	"github.com/wearly/searchd/internal/domain"
	"github.com/wearly/searchd/internal/metrics"
	"github.com/wearly/searchd/internal/usecase/blend"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

type fakeExpander struct {
	expansion domain.Expansion
	gotQuery  string
	calls     int
}

func (f *fakeExpander) Expand(_ context.Context, query string) domain.Expansion {
	f.calls++
	f.gotQuery = query
	if f.expansion.SemanticExpansion == "" {
		return domain.FallbackExpansion(query)
	}
	return f.expansion
}

type fakeRetriever struct {
	candidates []domain.Candidate
	err        error
	gotText    string
	gotPrice   domain.PriceIntent
	gotK       int
	calls      atomic.Int64
	block      chan struct{}
}

func (f *fakeRetriever) Retrieve(_ context.Context, text string, price domain.PriceIntent, k int) ([]domain.Candidate, error) {
	f.calls.Add(1)
	f.gotText = text
	f.gotPrice = price
	f.gotK = k
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type fakeReranker struct {
	items []domain.RankedItem
	calls int
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, candidates []domain.Candidate, topK int) []domain.RankedItem {
	f.calls++
	if f.items != nil {
		return f.items
	}
	items := make([]domain.RankedItem, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, domain.RankedItem{Candidate: c, RelevanceScore: c.Score})
		if len(items) >= topK {
			break
		}
	}
	return items
}

func candidates() []domain.Candidate {
	return []domain.Candidate{
		{ID: "p1", Score: 0.9, Payload: domain.Payload{"title": "Hoodie", "price_numeric": "999", "view_count": "100", "vote_count": "10"}},
		{ID: "p2", Score: 0.8, Payload: domain.Payload{"title": "Tee", "price_numeric": "499"}},
	}
}

type deps struct {
	expander  *fakeExpander
	retriever *fakeRetriever
	reranker  *fakeReranker
}

func newService(llmEnabled bool) (*Service, *deps) {
	d := &deps{
		expander:  &fakeExpander{},
		retriever: &fakeRetriever{candidates: candidates()},
		reranker:  &fakeReranker{},
	}
	s := New(Config{
		Expander:       d.expander,
		Retriever:      d.retriever,
		Reranker:       d.reranker,
		ResultsCache:   cache.New[domain.SearchResponse](100, time.Minute),
		ExpansionCache: cache.New[domain.Expansion](100, time.Minute),
		Popularity:     blend.Popularity{MaxViews: 100, MaxVotes: 10},
		LLMEnabled:     llmEnabled,
	})
	return s, d
}

func req(query string) domain.SearchRequest {
	return domain.SearchRequest{Query: query, Limit: 10}
}

func TestSearch_Validation(t *testing.T) {
	s, _ := newService(true)

	_, err := s.Search(context.Background(), domain.SearchRequest{Query: "", Limit: 10})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for empty query, got %v", err)
	}

	_, err = s.Search(context.Background(), domain.SearchRequest{Query: "x", Limit: 0})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for limit 0, got %v", err)
	}

	_, err = s.Search(context.Background(), domain.SearchRequest{Query: "x", Limit: 51})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for limit 51, got %v", err)
	}
}

func TestSearch_AdvancedMode(t *testing.T) {
	s, d := newService(true)
	d.expander.expansion = domain.Expansion{SemanticExpansion: "warm hoodie fleece sweatshirt"}

	resp, err := s.Search(context.Background(), req("hoodies"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.SearchMode != domain.ModeAdvanced {
		t.Errorf("expected advanced mode, got %s", resp.SearchMode)
	}
	if resp.Cached {
		t.Error("fresh result should not be marked cached")
	}
	if d.retriever.gotText != "warm hoodie fleece sweatshirt" {
		t.Errorf("retrieval should use the expansion, got %q", d.retriever.gotText)
	}
	if d.retriever.gotK != 30 {
		t.Errorf("expected over-fetch of 30, got %d", d.retriever.gotK)
	}
	if d.reranker.calls != 1 {
		t.Errorf("expected 1 rerank call, got %d", d.reranker.calls)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	if resp.Results[0].RelevanceScore == nil {
		t.Error("reranked results should carry a relevance score")
	}
	if resp.Results[0].Source != "catalog" {
		t.Errorf("unexpected source %q", resp.Results[0].Source)
	}
}

func TestSearch_SimpleMode(t *testing.T) {
	s, d := newService(false)

	resp, err := s.Search(context.Background(), req("hoodies"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.SearchMode != domain.ModeSimple {
		t.Errorf("expected simple mode, got %s", resp.SearchMode)
	}
	if d.expander.calls != 0 {
		t.Error("expander should not run without an LLM")
	}
	if d.reranker.calls != 0 {
		t.Error("reranker should not run without an LLM")
	}
	if d.retriever.gotK != 10 {
		t.Errorf("expected exact fetch of 10, got %d", d.retriever.gotK)
	}
	if resp.Results[0].Score != 0.9 {
		t.Errorf("similarity should pass through as score, got %f", resp.Results[0].Score)
	}
	if resp.Results[0].RelevanceScore != nil {
		t.Error("simple mode results should not carry a relevance score")
	}
}

func TestSearch_SkipRerank(t *testing.T) {
	s, d := newService(true)

	r := req("hoodies")
	r.SkipRerank = true
	resp, err := s.Search(context.Background(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.reranker.calls != 0 {
		t.Error("reranker should be skipped")
	}
	// Expansion still runs so retrieval quality is kept.
	if d.expander.calls != 1 {
		t.Errorf("expected 1 expand call, got %d", d.expander.calls)
	}
	// Expansion is an LLM stage, so the mode stays advanced.
	if resp.SearchMode != domain.ModeAdvanced {
		t.Errorf("expected advanced mode with rerank skipped, got %s", resp.SearchMode)
	}
	if resp.Results[0].RelevanceScore != nil {
		t.Error("unreranked results should not carry a relevance score")
	}
}

func TestSearch_CacheHit(t *testing.T) {
	s, d := newService(true)

	first, err := s.Search(context.Background(), req("hoodies"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Cached {
		t.Error("first response should not be cached")
	}

	second, err := s.Search(context.Background(), req("hoodies"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Cached {
		t.Error("second response should be served from cache")
	}
	if d.retriever.calls.Load() != 1 {
		t.Errorf("expected 1 retrieval, got %d", d.retriever.calls.Load())
	}
}

func TestSearch_SkipCacheBypassesReadButStores(t *testing.T) {
	s, d := newService(true)

	r := req("hoodies")
	r.SkipCache = true

	if _, err := s.Search(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Search(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.retriever.calls.Load() != 2 {
		t.Errorf("SkipCache should bypass the cache read, got %d retrievals", d.retriever.calls.Load())
	}

	// The stored result still serves later non-skipping requests.
	resp, err := s.Search(context.Background(), req("hoodies"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Cached {
		t.Error("expected cache hit after SkipCache stored the result")
	}
}

func TestSearch_DistinctLimitsDistinctKeys(t *testing.T) {
	s, d := newService(true)

	r1 := req("hoodies")
	r1.Limit = 10
	r2 := req("hoodies")
	r2.Limit = 5

	s.Search(context.Background(), r1)
	s.Search(context.Background(), r2)

	if d.retriever.calls.Load() != 2 {
		t.Errorf("different limits must not share cache entries, got %d retrievals", d.retriever.calls.Load())
	}
}

func TestSearch_PriceParsedFromQuery(t *testing.T) {
	s, d := newService(false)

	if _, err := s.Search(context.Background(), req("hoodies under 1000")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.retriever.gotPrice.Max == nil || *d.retriever.gotPrice.Max != 1000 {
		t.Errorf("price intent not parsed: %+v", d.retriever.gotPrice)
	}
	if d.retriever.gotText != "hoodies" {
		t.Errorf("price span should be stripped, got %q", d.retriever.gotText)
	}
}

func TestSearch_ExplicitBoundsOverrideParsed(t *testing.T) {
	s, d := newService(false)

	r := req("hoodies under 1000")
	maxP := 2000.0
	r.PriceMax = &maxP

	if _, err := s.Search(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.retriever.gotPrice.Max == nil || *d.retriever.gotPrice.Max != 2000 {
		t.Errorf("explicit bound should win: %+v", d.retriever.gotPrice)
	}
}

func TestSearch_RetrievalFailurePropagates(t *testing.T) {
	s, d := newService(false)
	d.retriever.err = domain.ErrRetrievalUnavailable

	_, err := s.Search(context.Background(), req("hoodies"))
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestSearch_FailureNotCached(t *testing.T) {
	s, d := newService(false)
	d.retriever.err = domain.ErrRetrievalUnavailable

	s.Search(context.Background(), req("hoodies"))

	d.retriever.err = nil
	resp, err := s.Search(context.Background(), req("hoodies"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Cached {
		t.Error("failures must not be cached")
	}
	if d.retriever.calls.Load() != 2 {
		t.Errorf("expected retry to hit the retriever, got %d calls", d.retriever.calls.Load())
	}
}

func TestSearch_ConcurrentRequestsShareOneExecution(t *testing.T) {
	s, d := newService(false)
	d.retriever.block = make(chan struct{})

	const n = 8
	var wg sync.WaitGroup
	responses := make([]domain.SearchResponse, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = s.Search(context.Background(), req("hoodies"))
		}(i)
	}

	// Let the goroutines pile up on the in-flight execution.
	time.Sleep(50 * time.Millisecond)
	close(d.retriever.block)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if len(responses[i].Results) == 0 {
			t.Fatalf("request %d got no results", i)
		}
	}
	if got := d.retriever.calls.Load(); got != 1 {
		t.Errorf("expected 1 shared retrieval, got %d", got)
	}
}

func TestSearch_CallerCancellationDoesNotKillSharedExecution(t *testing.T) {
	s, d := newService(false)
	d.retriever.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Search(ctx, req("hoodies"))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The shared execution keeps running and completes the cache fill.
	close(d.retriever.block)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if resp, err := s.Search(context.Background(), req("hoodies")); err == nil && resp.Cached {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("shared execution result never reached the cache")
}

func TestSearch_LimitTruncatesResults(t *testing.T) {
	s, d := newService(false)
	many := make([]domain.Candidate, 20)
	for i := range many {
		many[i] = domain.Candidate{ID: "p", Score: 0.5, Payload: domain.Payload{"title": "Hoodie"}}
	}
	d.retriever.candidates = many

	r := req("hoodies")
	r.Limit = 5
	resp, err := s.Search(context.Background(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 5 {
		t.Errorf("expected 5 results, got %d", len(resp.Results))
	}
	if resp.TotalResults != 5 {
		t.Errorf("totalResults should match, got %d", resp.TotalResults)
	}
}

func TestSearch_BlendAppliedOnRerankPath(t *testing.T) {
	s, d := newService(true)
	d.reranker.items = []domain.RankedItem{
		{
			Candidate:      domain.Candidate{ID: "unpopular", Payload: domain.Payload{"view_count": "0", "vote_count": "0"}},
			RelevanceScore: 0.9,
		},
		{
			Candidate:      domain.Candidate{ID: "popular", Payload: domain.Payload{"view_count": "100", "vote_count": "10"}},
			RelevanceScore: 0.9,
		},
	}

	resp, err := s.Search(context.Background(), req("hoodies"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Results[0].ID != "popular" {
		t.Errorf("blending should promote the popular item, got %s first", resp.Results[0].ID)
	}
}

func TestCacheStatsAndClear(t *testing.T) {
	s, _ := newService(false)

	s.Search(context.Background(), req("hoodies"))

	stats := s.CacheStats()
	if stats["results"].Size != 1 {
		t.Errorf("expected 1 cached result, got %d", stats["results"].Size)
	}

	s.ClearCaches()
	if s.CacheStats()["results"].Size != 0 {
		t.Error("expected empty cache after clear")
	}
}
