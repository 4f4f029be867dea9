package search

import (
	"context"
	"testing"
	"time"

	"componentsearch/searchservice/internal/domain"
)

// ---------------------------------------------------------------------------
// cacheLookup
// ---------------------------------------------------------------------------

func TestCacheLookupMissOnEmpty(t *testing.T) {
	svc := newTestService()
	_, found, needsRefresh := svc.cacheLookup("key", time.Now())
	if found || needsRefresh {
		t.Fatal("expected cache miss on empty cache")
	}
}

func TestCacheLookupHitFresh(t *testing.T) {
	svc := newTestService()
	now := time.Now()
	svc.cacheStore("key", testResponse("LM317T"), now)

	got, found, needsRefresh := svc.cacheLookup("key", now.Add(time.Minute))
	if !found {
		t.Fatal("expected cache hit")
	}
	if needsRefresh {
		t.Fatal("expected no refresh needed for fresh entry")
	}
	if got.TotalRows != 1 || len(got.Rows) != 1 {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestCacheLookupStaleRefreshesOnce(t *testing.T) {
	svc := newTestService()
	now := time.Now()
	svc.cacheStore("key", testResponse("LM317T"), now)

	// Past fresh TTL (1h), within stale TTL (3h).
	staleTime := now.Add(2 * time.Hour)
	got, found, needsRefresh := svc.cacheLookup("key", staleTime)
	if !found || !needsRefresh {
		t.Fatalf("expected stale hit with refresh, found=%v refresh=%v", found, needsRefresh)
	}
	if got.TotalRows != 1 {
		t.Fatalf("expected stale data returned, got %+v", got)
	}

	_, found, needsRefresh = svc.cacheLookup("key", staleTime.Add(time.Second))
	if !found {
		t.Fatal("expected stale hit on second lookup")
	}
	if needsRefresh {
		t.Fatal("second stale lookup should not trigger refresh")
	}
}

func TestCacheLookupExpiredBeyondStale(t *testing.T) {
	svc := newTestService()
	now := time.Now()
	svc.cacheStore("key", testResponse("LM317T"), now)
	svc.markPopular("key", "LM317T", now)

	_, found, _ := svc.cacheLookup("key", now.Add(4*time.Hour))
	if found {
		t.Fatal("expected miss for expired entry")
	}
	if _, ok := svc.popular["key"]; ok {
		t.Fatal("expired entry should drop its popularity record")
	}
}

func TestCacheLookupClonesResponse(t *testing.T) {
	svc := newTestService()
	now := time.Now()
	svc.cacheStore("key", testResponse("Original"), now)

	got, _, _ := svc.cacheLookup("key", now)
	got.Rows[0].MPN = "Modified"
	*got.Rows[0].Stock = 0
	*got.Providers[0].Total = 99

	again, _, _ := svc.cacheLookup("key", now)
	if again.Rows[0].MPN != "Original" || *again.Rows[0].Stock != 10 || *again.Providers[0].Total != 1 {
		t.Fatalf("cache entry was mutated through a lookup: %+v", again)
	}
}

func TestCacheWithTTLOption(t *testing.T) {
	svc := NewService(nil, domain.ProviderConfig{}, WithCacheTTL(10*time.Minute))
	now := time.Now()
	svc.cacheStore("key", testResponse("LM317T"), now)

	if _, _, refresh := svc.cacheLookup("key", now.Add(5*time.Minute)); refresh {
		t.Fatal("entry should still be fresh")
	}
	if _, found, refresh := svc.cacheLookup("key", now.Add(15*time.Minute)); !found || !refresh {
		t.Fatal("entry should be stale after the configured TTL")
	}
	if _, found, _ := svc.cacheLookup("key", now.Add(31*time.Minute)); found {
		t.Fatal("entry should expire after three TTLs")
	}
}

// ---------------------------------------------------------------------------
// trimming
// ---------------------------------------------------------------------------

func TestCacheStoreTrimsOldestEntries(t *testing.T) {
	svc := newTestService()
	svc.warmerCfg.cacheMaxEntries = 2
	now := time.Now()

	svc.cacheStore("a", testResponse("A"), now)
	svc.cacheStore("b", testResponse("B"), now.Add(time.Second))
	svc.cacheStore("c", testResponse("C"), now.Add(2*time.Second))

	if len(svc.cache) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(svc.cache))
	}
	if _, ok := svc.cache["a"]; ok {
		t.Fatal("oldest entry should have been trimmed")
	}
}

func TestMarkPopularTrimsLeastPopular(t *testing.T) {
	svc := newTestService()
	svc.warmerCfg.popularMaxEntries = 2
	now := time.Now()

	for i := 0; i < 3; i++ {
		svc.markPopular("hot", "hot", now)
	}
	svc.markPopular("warm", "warm", now)
	svc.markPopular("warm", "warm", now)
	svc.markPopular("cold", "cold", now.Add(time.Second))

	if len(svc.popular) != 2 {
		t.Fatalf("expected 2 popular entries, got %d", len(svc.popular))
	}
	if _, ok := svc.popular["cold"]; ok {
		t.Fatal("least popular query should have been trimmed")
	}
	if svc.popular["hot"].hits != 3 {
		t.Fatalf("expected 3 hits, got %d", svc.popular["hot"].hits)
	}
}

// ---------------------------------------------------------------------------
// warmer
// ---------------------------------------------------------------------------

func TestCollectWarmSpecsLimitsToTopN(t *testing.T) {
	svc := newTestService()
	svc.warmerCfg.warmTopQueries = 2
	now := time.Now()

	for i := 0; i < 5; i++ {
		svc.markPopular("k5", "five", now)
	}
	for i := 0; i < 3; i++ {
		svc.markPopular("k3", "three", now)
	}
	svc.markPopular("k1", "one", now)

	specs := svc.collectWarmSpecs(now)
	if len(specs) != 2 || specs[0].query != "five" || specs[1].query != "three" {
		t.Fatalf("unexpected warm specs: %+v", specs)
	}
	if svc.popular["k5"].lastWarm != now {
		t.Fatal("collected queries should record their warm time")
	}
}

func TestRunWarmCycleRefreshesExpiredPopularQueries(t *testing.T) {
	provider := &fakeProvider{name: "p1", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	svc := newServiceWith(provider)
	svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})

	now := time.Now()
	svc.cacheMu.Lock()
	for _, entry := range svc.cache {
		entry.expiresAt = now.Add(-time.Second)
		entry.staleUntil = now.Add(time.Hour)
	}
	svc.cacheMu.Unlock()

	svc.runWarmCycle(context.Background())

	if got := provider.calls.Load(); got != 2 {
		t.Fatalf("expected 2 provider calls after warm cycle, got %d", got)
	}
	if _, _, refresh := svc.cacheLookup(buildSearchCacheKey("LM317T", ""), time.Now()); refresh {
		t.Fatal("warmed entry should be fresh again")
	}
}

func TestRunWarmCycleSkipsFreshCache(t *testing.T) {
	provider := &fakeProvider{name: "p1", rows: []domain.CanonicalRow{part("LM317T", 45, 10)}}
	svc := newServiceWith(provider)
	svc.Search(context.Background(), domain.SearchRequest{Query: "LM317T"})

	svc.runWarmCycle(context.Background())

	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected only 1 call, got %d", got)
	}
}

func TestRunWarmCycleEmptyPopular(t *testing.T) {
	svc := newTestService()
	svc.runWarmCycle(context.Background())
}

// ---------------------------------------------------------------------------
// keys and clones
// ---------------------------------------------------------------------------

func TestBuildSearchCacheKey(t *testing.T) {
	got := buildSearchCacheKey("  LM317T ", "mouser,tme")
	if got != "q=lm317t|p=mouser,tme" {
		t.Fatalf("unexpected key %q", got)
	}
	if buildSearchCacheKey("LM317T", "mouser") == buildSearchCacheKey("LM317T", "mouser,tme") {
		t.Fatal("different provider sets must not share a cache key")
	}
}

func TestCloneSearchResponseKeepsNilSlices(t *testing.T) {
	cloned := cloneSearchResponse(domain.SearchResponse{Query: "x"})
	if cloned.Rows != nil || cloned.Providers != nil {
		t.Fatal("expected nil slices in clone")
	}
}

func TestCacheClearRefreshingResetsFlag(t *testing.T) {
	svc := newTestService()
	svc.cacheStore("key", testResponse("LM317T"), time.Now())
	svc.cache["key"].refreshing = true

	svc.cacheClearRefreshing("key")
	svc.cacheClearRefreshing("missing")

	if svc.cache["key"].refreshing {
		t.Fatal("expected refreshing to be cleared")
	}
}

func TestCacheStoreMemoryOnly(t *testing.T) {
	svc := newTestService()
	now := time.Now()
	svc.cacheStoreMemoryOnly("memonly", testResponse("LM317T"), now)

	got, found, _ := svc.cacheLookup("memonly", now)
	if !found || got.TotalRows != 1 {
		t.Fatalf("expected memory-only hit, got found=%v %+v", found, got)
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newTestService() *Service {
	return NewService(nil, domain.ProviderConfig{})
}

func testResponse(mpn string) domain.SearchResponse {
	total := 1
	elapsed := int64(12)
	return domain.SearchResponse{
		Query:     mpn,
		Rows:      []domain.CanonicalRow{part(mpn, 45, 10)},
		Providers: []domain.ProviderSummary{{Provider: "p1", Status: domain.OutcomeOK, Total: &total, ElapsedMS: &elapsed}},
		TotalRows: 1,
		Phase:     PhaseDone,
		Final:     true,
	}
}
