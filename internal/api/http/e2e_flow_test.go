package apihttp

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"componentsearch/searchservice/internal/catalog"
	"componentsearch/searchservice/internal/currency"
	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
	"componentsearch/searchservice/internal/providers/mouser"
	"componentsearch/searchservice/internal/search"
)

const mouserFixture = `{
  "Errors": [],
  "SearchResults": {
    "NumberOfResult": 2,
    "Parts": [
      {
        "ManufacturerPartNumber": "LM317LZ",
        "Manufacturer": "onsemi",
        "Description": "Low current adjustable regulator",
        "Availability": "On Order"
      },
      {
        "ManufacturerPartNumber": "LM317T",
        "Manufacturer": "onsemi",
        "Description": "Linear Voltage Regulators 1.2-37V Adj Positive",
        "Availability": "1,234 In Stock",
        "ProductDetailUrl": "https://www.mouser.com/ProductDetail/512-LM317T",
        "PriceBreaks": [
          {"Quantity": 1, "Price": "$0.72", "Currency": "USD"},
          {"Quantity": 100, "Price": "$0.45", "Currency": "USD"}
        ]
      }
    ]
  }
}`

// newFlowServer wires the real search stack: a Mouser client against a stub
// upstream, a SQLite catalog and the caching service.
func newFlowServer(t *testing.T) (*Server, *atomic.Int32) {
	t.Helper()

	upstreamCalls := &atomic.Int32{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		_, _ = w.Write([]byte(mouserFixture))
	}))
	t.Cleanup(upstream.Close)

	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	price := 40.0
	stock := 5
	if err := store.Upsert(context.Background(), catalog.Product{
		MPN:          "LM317T",
		Manufacturer: "Texas Instruments",
		Title:        "LM317T regulator",
		Regions:      []domain.Region{domain.RegionRU},
		Stock:        &stock,
		PriceRUB:     &price,
		Active:       true,
	}); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	retry := common.RetryConfig{MaxAttempts: 1}
	provider := mouser.NewProvider(mouser.Config{Endpoint: upstream.URL, HTTPClient: upstream.Client(), Retry: &retry})
	rates := currency.NewTable()
	orchestrator := search.NewOrchestrator([]search.Provider{provider},
		search.WithCatalog(store),
		search.WithRateConverter(rates),
	)
	service := search.NewService(orchestrator, domain.ProviderConfig{MouserAPIKey: "key"})
	return NewServer(service, WithCatalog(store), WithRates(rates)), upstreamCalls
}

func TestE2ESearchMergesCatalogAndProvider(t *testing.T) {
	server, upstreamCalls := newFlowServer(t)

	req := httptest.NewRequest(http.MethodGet, "/search?q=lm317t", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp domain.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Query != "lm317t" {
		t.Fatalf("query = %q", resp.Query)
	}
	if len(resp.Rows) != 2 {
		t.Fatalf("rows = %d, want 2 after dedup", len(resp.Rows))
	}
	// The catalog offer is cheaper in roubles than Mouser's best break.
	first := resp.Rows[0]
	if first.MPN != "LM317T" || first.Source != "manual" {
		t.Fatalf("first row = %s from %s", first.MPN, first.Source)
	}
	if first.MinPriceRUB == nil || *first.MinPriceRUB != 40 {
		t.Fatalf("first row price = %v", first.MinPriceRUB)
	}
	if resp.Rows[1].MPN != "LM317LZ" || resp.Rows[1].Source != "mouser" {
		t.Fatalf("second row = %s from %s", resp.Rows[1].MPN, resp.Rows[1].Source)
	}

	if len(resp.Providers) != 2 || resp.Providers[0].Provider != "manual" || resp.Providers[1].Provider != "mouser" {
		t.Fatalf("providers = %#v", resp.Providers)
	}
	for _, summary := range resp.Providers {
		if summary.Status != domain.OutcomeOK {
			t.Fatalf("provider %s status %s: %s", summary.Provider, summary.Status, summary.Message)
		}
	}

	// Second request is served from the cache.
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=LM317T", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Cached || upstreamCalls.Load() != 1 {
		t.Fatalf("cached = %v, upstream calls = %d", resp.Cached, upstreamCalls.Load())
	}
}

func TestE2ESearchStreamEndsWithFinalSnapshot(t *testing.T) {
	server, _ := newFlowServer(t)

	req := httptest.NewRequest(http.MethodGet, "/search/stream?q=lm317t&nocache=1", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var events []string
	var last domain.SearchResponse
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			events = append(events, strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last); err != nil {
				t.Fatalf("decode event: %v", err)
			}
		}
	}
	want := []string{search.PhaseBootstrap, search.PhaseUpdate, search.PhaseDone}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", events, want)
	}
	if !last.Final || len(last.Rows) != 2 || last.Rows[0].Source != "manual" {
		t.Fatalf("final snapshot = %#v", last)
	}
}

func TestE2ECatalogEditIsSearchable(t *testing.T) {
	server, _ := newFlowServer(t)
	handler := server.Handler()

	put := httptest.NewRequest(http.MethodPut, "/catalog/products",
		strings.NewReader(`{"mpn":"NE555P","title":"NE555P timer","priceRub":12,"active":true}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, put)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=ne555p&nocache=1", nil))
	var resp domain.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, row := range resp.Rows {
		if row.MPN == "NE555P" && row.Source == "manual" {
			found = true
		}
	}
	if !found {
		t.Fatalf("catalog product not returned: %#v", resp.Rows)
	}
}

func TestE2ECatalogEditInvalidatesCachedSearch(t *testing.T) {
	server, upstreamCalls := newFlowServer(t)
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=lm317t", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/catalog/products",
		strings.NewReader(`{"mpn":"LM317T","title":"LM317T regulator","priceRub":30,"active":true}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=lm317t", nil))
	var resp domain.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cached || upstreamCalls.Load() != 2 {
		t.Fatalf("cached = %v, upstream calls = %d", resp.Cached, upstreamCalls.Load())
	}
	if len(resp.Rows) == 0 || resp.Rows[0].MinPriceRUB == nil || *resp.Rows[0].MinPriceRUB != 30 {
		t.Fatalf("edited catalog price not visible: %#v", resp.Rows)
	}
}
