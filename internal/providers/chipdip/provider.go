package chipdip

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

const (
	providerName    = "chipdip"
	DefaultEndpoint = "https://www.chipdip.ru"
)

type Config struct {
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
	Retry      *common.RetryConfig
}

// Provider scrapes the ChipDip search listing.
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
			RatePerSecond: 1,
			Burst:         2,
			Retry:         cfg.Retry,
			MaxBodyBytes:  6 * 1024 * 1024,
		}),
	}
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: providerName, Label: "ChipDip", Kind: "scraper"}
}

func (p *Provider) Configured(cfg domain.ProviderConfig) bool {
	return cfg.ChipDipEnabled
}

func (p *Provider) Search(ctx context.Context, query string, cfg domain.ProviderConfig) (domain.Payload, error) {
	if !cfg.ChipDipEnabled {
		return nil, common.ErrEmptyCredentials
	}
	endpoint := p.endpoint + "/search?searchtext=" + url.QueryEscape(strings.TrimSpace(query))

	resp, err := p.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	return Payload{HTML: decodeHTML(resp.Body, resp.Header.Get("Content-Type")), BaseURL: p.endpoint}, nil
}

// decodeHTML returns the page as UTF-8. Pages declared or detected as
// windows-1251 are transcoded.
func decodeHTML(payload []byte, contentType string) string {
	charset := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		charset = strings.ToLower(params["charset"])
	}
	if charset != "windows-1251" && charset != "cp1251" && utf8.Valid(payload) {
		return string(payload)
	}
	decoded, err := charmap.Windows1251.NewDecoder().Bytes(payload)
	if err != nil {
		return string(payload)
	}
	return string(decoded)
}
