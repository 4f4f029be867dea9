package mouser

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

const (
	providerName    = "mouser"
	DefaultEndpoint = "https://api.mouser.com/api/v1"
	defaultRecords  = 50
)

type Config struct {
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
	Retry      *common.RetryConfig
}

// Provider searches the Mouser Search API by keyword.
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
			Provider:   providerName,
			HTTPClient: cfg.HTTPClient,
			UserAgent:  cfg.UserAgent,
			// Mouser allows 30 calls per minute per key.
			RatePerSecond: 0.5,
			Burst:         5,
			Retry:         cfg.Retry,
		}),
	}
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: providerName, Label: "Mouser", Kind: "api"}
}

func (p *Provider) Configured(cfg domain.ProviderConfig) bool {
	return strings.TrimSpace(cfg.MouserAPIKey) != ""
}

type keywordRequest struct {
	SearchByKeywordRequest keywordOptions `json:"SearchByKeywordRequest"`
}

type keywordOptions struct {
	Keyword        string `json:"keyword"`
	Records        int    `json:"records"`
	StartingRecord int    `json:"startingRecord"`
}

func (p *Provider) Search(ctx context.Context, query string, cfg domain.ProviderConfig) (domain.Payload, error) {
	apiKey := strings.TrimSpace(cfg.MouserAPIKey)
	if apiKey == "" {
		return nil, common.ErrEmptyCredentials
	}

	endpoint := p.endpoint + "/search/keyword?apiKey=" + url.QueryEscape(apiKey)
	body := keywordRequest{SearchByKeywordRequest: keywordOptions{
		Keyword: strings.TrimSpace(query),
		Records: defaultRecords,
	}}

	var payload Payload
	if err := p.client.PostJSON(ctx, endpoint, nil, body, &payload); err != nil {
		return nil, err
	}
	if msg := payload.errorMessage(); msg != "" {
		return nil, &common.APIError{Provider: providerName, Message: msg}
	}
	return payload, nil
}
