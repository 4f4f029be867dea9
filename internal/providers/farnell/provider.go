package farnell

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

const (
	providerName    = "farnell"
	DefaultEndpoint = "https://api.element14.com/catalog/products"
	DefaultRegion   = "uk.farnell.com"
	defaultResults  = 25
)

type Config struct {
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
	Retry      *common.RetryConfig
}

// Provider searches the element14 product catalog of one store.
type Provider struct {
	endpoint string
	client   *common.Client
}

func NewProvider(cfg Config) *Provider {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Provider{
		endpoint: endpoint,
		client: common.NewClient(common.ClientConfig{
			Provider:      providerName,
			HTTPClient:    cfg.HTTPClient,
			UserAgent:     cfg.UserAgent,
			RatePerSecond: 2,
			Burst:         2,
			Retry:         cfg.Retry,
		}),
	}
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: providerName, Label: "Farnell / element14", Kind: "api"}
}

func (p *Provider) Configured(cfg domain.ProviderConfig) bool {
	return strings.TrimSpace(cfg.FarnellAPIKey) != ""
}

func (p *Provider) Search(ctx context.Context, query string, cfg domain.ProviderConfig) (domain.Payload, error) {
	apiKey := strings.TrimSpace(cfg.FarnellAPIKey)
	if apiKey == "" {
		return nil, common.ErrEmptyCredentials
	}
	region := storeRegion(cfg.FarnellRegion)
	term := "any:" + strings.TrimSpace(query)

	params := url.Values{}
	params.Set("callInfo.responseDataFormat", "JSON")
	params.Set("callInfo.apiKey", apiKey)
	params.Set("term", term)
	params.Set("storeInfo.id", region)
	params.Set("resultsSettings.offset", "0")
	params.Set("resultsSettings.numberOfResults", strconv.Itoa(defaultResults))
	params.Set("resultsSettings.responseGroup", "large")

	var payload Payload
	if err := p.client.GetJSON(ctx, p.endpoint+"?"+params.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	if payload.Fault != nil {
		return nil, &common.APIError{Provider: providerName, Message: payload.Fault.message()}
	}
	payload.Region = region
	payload.Term = term
	return payload, nil
}

func storeRegion(raw string) string {
	region := strings.ToLower(strings.TrimSpace(raw))
	region = strings.TrimPrefix(region, "https://")
	region = strings.TrimPrefix(region, "http://")
	region = strings.TrimRight(region, "/")
	if region == "" {
		return DefaultRegion
	}
	return region
}
