package tme

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

const (
	providerName    = "tme"
	DefaultEndpoint = "https://api.tme.eu"
	defaultCountry  = "PL"
	defaultLanguage = "EN"
	maxPriceSymbols = 50
	statusOK        = "OK"
)

type Config struct {
	Endpoint   string
	Country    string
	Language   string
	HTTPClient *http.Client
	UserAgent  string
	Retry      *common.RetryConfig
	Logger     *slog.Logger
}

// Provider searches TME with a signed Products/Search call followed by a
// Products/GetPricesAndStocks call for the returned symbols.
type Provider struct {
	endpoint string
	country  string
	language string
	client   *common.Client
	logger   *slog.Logger
}

func NewProvider(cfg Config) *Provider {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	country := strings.ToUpper(strings.TrimSpace(cfg.Country))
	if country == "" {
		country = defaultCountry
	}
	language := strings.ToUpper(strings.TrimSpace(cfg.Language))
	if language == "" {
		language = defaultLanguage
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		endpoint: endpoint,
		country:  country,
		language: language,
		logger:   logger,
		client: common.NewClient(common.ClientConfig{
			Provider:   providerName,
			HTTPClient: cfg.HTTPClient,
			UserAgent:  cfg.UserAgent,
			// TME allows up to 5 requests per second per token.
			RatePerSecond: 5,
			Burst:         5,
			Retry:         cfg.Retry,
		}),
	}
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: providerName, Label: "TME", Kind: "api"}
}

func (p *Provider) Configured(cfg domain.ProviderConfig) bool {
	return strings.TrimSpace(cfg.TMEToken) != "" && strings.TrimSpace(cfg.TMESecret) != ""
}

type envelope[T any] struct {
	Status string `json:"Status"`
	Error  string `json:"Error"`
	Data   T      `json:"Data"`
}

func (e envelope[T]) err() error {
	if strings.EqualFold(strings.TrimSpace(e.Status), statusOK) {
		return nil
	}
	msg := strings.TrimSpace(e.Error)
	if msg == "" {
		msg = strings.TrimSpace(e.Status)
	}
	if msg == "" {
		msg = "missing status"
	}
	return &common.APIError{Provider: providerName, Message: msg}
}

func (p *Provider) Search(ctx context.Context, query string, cfg domain.ProviderConfig) (domain.Payload, error) {
	token := strings.TrimSpace(cfg.TMEToken)
	secret := strings.TrimSpace(cfg.TMESecret)
	if token == "" || secret == "" {
		return nil, common.ErrEmptyCredentials
	}

	search := newParams()
	search.set("Token", token)
	search.set("SearchPlain", strings.TrimSpace(query))
	search.set("Country", p.country)
	search.set("Language", p.language)
	search.set("SearchOrder", "ACCURACY")

	var found envelope[searchData]
	if err := p.call(ctx, "/Products/Search.json", secret, search, &found); err != nil {
		return nil, err
	}
	if err := found.err(); err != nil {
		return nil, err
	}

	payload := Payload{Products: found.Data.ProductList, Prices: map[string]priceEntry{}}
	symbols := payload.symbols(maxPriceSymbols)
	if len(symbols) == 0 {
		return payload, nil
	}

	prices := newParams()
	prices.set("Token", token)
	prices.set("Country", p.country)
	prices.set("Language", p.language)
	prices.setList("SymbolList", symbols)

	var priced envelope[pricesData]
	err := p.call(ctx, "/Products/GetPricesAndStocks.json", secret, prices, &priced)
	if err == nil {
		err = priced.err()
	}
	if err != nil {
		// Rows without price and stock are still useful.
		p.logger.Warn("tme price lookup failed",
			slog.String("query", query),
			slog.Int("symbols", len(symbols)),
			slog.String("error", err.Error()),
		)
		return payload, nil
	}
	payload.Currency = domain.NormalizeCurrency(priced.Data.Currency)
	for _, entry := range priced.Data.ProductList {
		payload.Prices[strings.TrimSpace(entry.Symbol)] = entry
	}
	return payload, nil
}

func (p *Provider) call(ctx context.Context, path, secret string, params *params, out any) error {
	endpoint := p.endpoint + path
	return p.client.PostForm(ctx, endpoint, nil, signedBody(secret, http.MethodPost, endpoint, params), out)
}
