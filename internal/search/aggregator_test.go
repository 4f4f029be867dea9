package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"componentsearch/searchservice/internal/domain"
)

func newServiceWith(providers ...Provider) *Service {
	return NewService(NewOrchestrator(providers), domain.ProviderConfig{})
}

func TestServiceSearchCachesCompleteResults(t *testing.T) {
	provider := &fakeProvider{name: "p1", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	svc := newServiceWith(provider)

	first, err := svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if first.Cached || first.TotalRows != 1 || !first.Final {
		t.Fatalf("unexpected first response: %+v", first)
	}

	second, err := svc.Search(context.Background(), domain.SearchRequest{Query: "  lm317t "})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !second.Cached || second.TotalRows != 1 {
		t.Fatalf("expected cached response, got %+v", second)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
}

func TestServiceInvalidateCacheForcesFreshSearch(t *testing.T) {
	provider := &fakeProvider{name: "p1", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	svc := newServiceWith(provider)

	svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})
	svc.InvalidateCache(context.Background())

	again, err := svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if again.Cached {
		t.Fatal("expected a fresh search after invalidation")
	}
	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

func TestServiceSearchDoesNotCacheFailedProviders(t *testing.T) {
	good := &fakeProvider{name: "good", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	broken := &fakeProvider{name: "broken", err: errors.New("503")}
	svc := newServiceWith(good, broken)

	for i := 0; i < 2; i++ {
		resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if resp.Cached {
			t.Fatal("partial result must not be served from cache")
		}
	}
	if got := good.calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

func TestServiceSearchNoCacheBypassesCache(t *testing.T) {
	provider := &fakeProvider{name: "p1", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	svc := newServiceWith(provider)

	svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})
	resp, _ := svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T", NoCache: true})

	if resp.Cached {
		t.Fatal("NoCache request must not be served from cache")
	}
	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
}

func TestServiceSearchCacheDisabled(t *testing.T) {
	provider := &fakeProvider{name: "p1", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	svc := NewService(NewOrchestrator([]Provider{provider}), domain.ProviderConfig{}, WithCacheDisabled(true))

	svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})
	svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})

	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls, got %d", got)
	}
	if len(svc.cache) != 0 {
		t.Fatalf("expected empty cache, got %d entries", len(svc.cache))
	}
}

func TestServiceSearchRejectsLongQuery(t *testing.T) {
	provider := &fakeProvider{name: "p1"}
	svc := newServiceWith(provider)

	_, err := svc.Search(context.Background(), domain.SearchRequest{Query: strings.Repeat("я", maxQueryRunes+1)})
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if provider.calls.Load() != 0 {
		t.Fatal("provider must not be called for an invalid query")
	}

	if _, err := svc.Search(context.Background(), domain.SearchRequest{Query: strings.Repeat("я", maxQueryRunes)}); err != nil {
		t.Fatalf("query at the limit must be accepted: %v", err)
	}
}

func TestServiceSearchEmptyQuery(t *testing.T) {
	provider := &fakeProvider{name: "p1"}
	svc := newServiceWith(provider)

	resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "   "})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Rows == nil || resp.Providers == nil || len(resp.Rows) != 0 || !resp.Final {
		t.Fatalf("unexpected empty response: %+v", resp)
	}
	if provider.calls.Load() != 0 {
		t.Fatal("provider must not be called for an empty query")
	}
}

func TestServiceSearchConcurrentHits(t *testing.T) {
	provider := &fakeProvider{name: "p1", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	svc := newServiceWith(provider)
	svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})
			if err != nil || !resp.Cached {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := failures.Load(); got != 0 {
		t.Fatalf("expected all concurrent searches to hit the cache, %d did not", got)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
}

func drain(ch <-chan domain.SearchResponse) []domain.SearchResponse {
	var out []domain.SearchResponse
	for resp := range ch {
		out = append(out, resp)
	}
	return out
}

func TestServiceSearchStreamPhases(t *testing.T) {
	fast := &fakeProvider{name: "fast", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	slow := &fakeProvider{name: "slow", delay: 30 * time.Millisecond, rows: []domain.CanonicalRow{part("LM317LZ", 5, 100)}}
	svc := newServiceWith(slow, fast)

	ch, err := svc.SearchStream(context.Background(), domain.SearchRequest{Query: "LM317"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	responses := drain(ch)

	if len(responses) != 4 {
		t.Fatalf("expected bootstrap, 2 updates and done, got %d responses", len(responses))
	}
	if responses[0].Phase != PhaseBootstrap || len(responses[0].Rows) != 0 || responses[0].Final {
		t.Fatalf("unexpected bootstrap snapshot: %+v", responses[0])
	}
	if responses[1].Phase != PhaseUpdate || responses[1].Provider != "fast" || len(responses[1].Providers) != 1 {
		t.Fatalf("first update should come from the fast provider: %+v", responses[1])
	}
	if responses[2].Phase != PhaseUpdate || responses[2].Provider != "slow" || len(responses[2].Rows) != 2 {
		t.Fatalf("unexpected second update: %+v", responses[2])
	}
	last := responses[3]
	if last.Phase != PhaseDone || !last.Final || last.TotalRows != 2 {
		t.Fatalf("unexpected final snapshot: %+v", last)
	}
	if last.Providers[0].Provider != "slow" || last.Providers[1].Provider != "fast" {
		t.Fatalf("final summaries must follow provider order, got %+v", last.Providers)
	}
}

func TestServiceSearchStreamHitsCache(t *testing.T) {
	provider := &fakeProvider{name: "p1", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	svc := newServiceWith(provider)
	svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})

	ch, err := svc.SearchStream(context.Background(), domain.SearchRequest{Query: "LM317T"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	responses := drain(ch)

	if len(responses) != 1 || !responses[0].Cached || !responses[0].Final {
		t.Fatalf("expected a single cached final response, got %+v", responses)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
}

func TestServiceSearchStreamStoresFinalResult(t *testing.T) {
	provider := &fakeProvider{name: "p1", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	svc := newServiceWith(provider)

	ch, _ := svc.SearchStream(context.Background(), domain.SearchRequest{Query: "LM317T"})
	drain(ch)

	resp, _ := svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})
	if !resp.Cached {
		t.Fatal("streamed result should populate the cache")
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
}

func TestServiceSearchStreamRejectsLongQuery(t *testing.T) {
	svc := newServiceWith()
	if _, err := svc.SearchStream(context.Background(), domain.SearchRequest{Query: strings.Repeat("a", maxQueryRunes+1)}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestServiceProvidersReflectConfig(t *testing.T) {
	svc := newServiceWith(&fakeProvider{name: "b"}, &fakeProvider{name: "a", disabled: true})

	infos := svc.Providers()
	if len(infos) != 2 || infos[0].Name != "a" || infos[1].Name != "b" {
		t.Fatalf("expected providers sorted by name, got %+v", infos)
	}
	if infos[0].Enabled || !infos[1].Enabled {
		t.Fatalf("unexpected enabled flags: %+v", infos)
	}
}
