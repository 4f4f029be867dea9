package tme

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"componentsearch/searchservice/internal/currency"
	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

const searchFixture = `{
  "Status": "OK",
  "Data": {
    "Amount": 2,
    "ProductList": [
      {
        "Symbol": "LM317T-ST",
        "OriginalSymbol": "LM317T",
        "Producer": "STMicroelectronics",
        "Description": "IC: voltage regulator; LDO,adjustable; 1.2÷37V; 1.5A; TO220",
        "Photo": "//ce8dc832c.cloudimg.io/lm317t.jpg",
        "ProductInformationPage": "//www.tme.eu/en/details/lm317t-st/"
      },
      {
        "Symbol": "LM317LZ",
        "OriginalSymbol": "",
        "Producer": "onsemi",
        "Description": "IC: voltage regulator; TO92"
      }
    ]
  }
}`

const pricesFixture = `{
  "Status": "OK",
  "Data": {
    "Currency": "EUR",
    "PriceType": "NET",
    "ProductList": [
      {"Symbol": "LM317T-ST", "Amount": 3400, "PriceList": [
        {"Amount": 1, "PriceValue": 0.41},
        {"Amount": 25, "PriceValue": 0.29}
      ]}
    ]
  }
}`

var testConfig = domain.ProviderConfig{TMEToken: "token", TMESecret: "secret"}

func newTestProvider(srv *httptest.Server) *Provider {
	retry := common.RetryConfig{MaxAttempts: 1}
	return NewProvider(Config{Endpoint: srv.URL, HTTPClient: srv.Client(), Retry: &retry})
}

// verifySignature recomputes the signature the way the TME API does.
func verifySignature(t *testing.T, r *http.Request, endpoint string) url.Values {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Errorf("read body: %v", err)
	}
	body := string(raw)
	idx := strings.LastIndex(body, "&ApiSignature=")
	if idx < 0 {
		t.Errorf("missing signature in %q", body)
		return nil
	}
	got, _ := url.QueryUnescape(body[idx+len("&ApiSignature="):])
	if want := sign("secret", http.MethodPost, endpoint, body[:idx]); got != want {
		t.Errorf("signature mismatch: got %q want %q", got, want)
	}
	form, err := url.ParseQuery(body)
	if err != nil {
		t.Errorf("parse body: %v", err)
	}
	return form
}

func TestSearchJoinsPrices(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		form := verifySignature(t, r, srvURL+r.URL.Path)
		switch r.URL.Path {
		case "/Products/Search.json":
			if form.Get("SearchPlain") != "LM317" || form.Get("Country") != "PL" || form.Get("Token") != "token" {
				t.Errorf("unexpected search form %v", form)
			}
			_, _ = w.Write([]byte(searchFixture))
		case "/Products/GetPricesAndStocks.json":
			if form.Get("SymbolList[0]") != "LM317T-ST" || form.Get("SymbolList[1]") != "LM317LZ" {
				t.Errorf("unexpected symbol list %v", form)
			}
			_, _ = w.Write([]byte(pricesFixture))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	payload, err := newTestProvider(srv).Search(context.Background(), "LM317", testConfig)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	rows := payload.Normalize(currency.NewTable())

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	priced := rows[0]
	if priced.MPN != "LM317T" || priced.Manufacturer != "STMicroelectronics" {
		t.Fatalf("unexpected identity %+v", priced)
	}
	if priced.ImageURL != "https://ce8dc832c.cloudimg.io/lm317t.jpg" || priced.ProductURL != "https://www.tme.eu/en/details/lm317t-st/" {
		t.Fatalf("links should be absolute, got %q %q", priced.ImageURL, priced.ProductURL)
	}
	if priced.Stock == nil || *priced.Stock != 3400 {
		t.Fatalf("expected stock 3400, got %v", priced.Stock)
	}
	if *priced.MinPrice != 0.29 || priced.MinCurrency != domain.CurrencyEUR || priced.MinPriceRUB == nil {
		t.Fatalf("unexpected min price %v %s", *priced.MinPrice, priced.MinCurrency)
	}
	unpriced := rows[1]
	if unpriced.MPN != "LM317LZ" || unpriced.Stock != nil || unpriced.MinPrice != nil {
		t.Fatalf("symbol without price data should stay unknown, got %+v", unpriced)
	}
}

func TestSearchDegradesWhenPricesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Products/Search.json" {
			_, _ = w.Write([]byte(searchFixture))
			return
		}
		http.Error(w, `{"Status":"E_SERVICE_UNAVAILABLE"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	payload, err := newTestProvider(srv).Search(context.Background(), "LM317", testConfig)
	if err != nil {
		t.Fatalf("price failure must not fail the search: %v", err)
	}
	rows := payload.Normalize(currency.NewTable())
	if len(rows) != 2 || rows[0].MinPrice != nil || rows[0].Stock != nil {
		t.Fatalf("expected rows without price, got %+v", rows)
	}
}

func TestSearchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Status":"E_AUTHENTICATION_FAILED","Error":"Invalid signature"}`))
	}))
	defer srv.Close()

	_, err := newTestProvider(srv).Search(context.Background(), "LM317", testConfig)
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid signature" {
		t.Fatalf("expected APIError, got %v", err)
	}
}

func TestSearchRequiresCredentials(t *testing.T) {
	p := NewProvider(Config{})
	if p.Configured(domain.ProviderConfig{TMEToken: "token"}) {
		t.Fatal("token alone must not configure the provider")
	}
	if _, err := p.Search(context.Background(), "LM317", domain.ProviderConfig{}); !errors.Is(err, common.ErrEmptyCredentials) {
		t.Fatalf("expected ErrEmptyCredentials, got %v", err)
	}
}

func TestParamsEncodeSortsKeysAndExpandsLists(t *testing.T) {
	p := newParams()
	p.set("Token", "t")
	p.set("Country", "PL")
	p.setList("SymbolList", []string{"A B", "C~D"})

	want := "Country=PL&SymbolList%5B0%5D=A+B&SymbolList%5B1%5D=C%7ED&Token=t"
	if got := p.encode(); got != want {
		t.Fatalf("encode = %q, want %q", got, want)
	}
}

func TestRawURLEncode(t *testing.T) {
	if got := rawURLEncode("https://api.tme.eu/Products/Search.json"); got != "https%3A%2F%2Fapi.tme.eu%2FProducts%2FSearch.json" {
		t.Fatalf("unexpected encoding %q", got)
	}
	if got := rawURLEncode("a b+c"); got != "a%20b%2Bc" {
		t.Fatalf("unexpected encoding %q", got)
	}
}
