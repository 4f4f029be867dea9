package digikey

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

const (
	providerName    = "digikey"
	DefaultEndpoint = "https://api.digikey.com"
	defaultLimit    = 50
	tokenLeeway     = 60 * time.Second
)

type Config struct {
	Endpoint   string
	HTTPClient *http.Client
	UserAgent  string
	Retry      *common.RetryConfig
	Now        func() time.Time
}

// Provider searches the Product Information v4 keyword endpoint with an
// OAuth2 client-credentials token.
type Provider struct {
	endpoint string
	client   *common.Client
	now      func() time.Time

	mu     sync.Mutex
	tokens map[string]accessToken
}

type accessToken struct {
	value     string
	expiresAt time.Time
}

func NewProvider(cfg Config) *Provider {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		endpoint: endpoint,
		now:      now,
		tokens:   make(map[string]accessToken),
		client: common.NewClient(common.ClientConfig{
			Provider:      providerName,
			HTTPClient:    cfg.HTTPClient,
			UserAgent:     cfg.UserAgent,
			RatePerSecond: 2,
			Burst:         4,
			Retry:         cfg.Retry,
		}),
	}
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{Name: providerName, Label: "DigiKey", Kind: "api"}
}

func (p *Provider) Configured(cfg domain.ProviderConfig) bool {
	return strings.TrimSpace(cfg.DigiKeyClientID) != "" && strings.TrimSpace(cfg.DigiKeyClientSecret) != ""
}

type keywordRequest struct {
	Keywords string `json:"Keywords"`
	Limit    int    `json:"Limit"`
	Offset   int    `json:"Offset"`
}

func (p *Provider) Search(ctx context.Context, query string, cfg domain.ProviderConfig) (domain.Payload, error) {
	clientID := strings.TrimSpace(cfg.DigiKeyClientID)
	clientSecret := strings.TrimSpace(cfg.DigiKeyClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, common.ErrEmptyCredentials
	}

	token, err := p.token(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("X-DIGIKEY-Client-Id", clientID)
	header.Set("X-DIGIKEY-Locale-Site", "US")
	header.Set("X-DIGIKEY-Locale-Language", "en")
	header.Set("X-DIGIKEY-Locale-Currency", "USD")

	var payload Payload
	body := keywordRequest{Keywords: strings.TrimSpace(query), Limit: defaultLimit}
	if err := p.client.PostJSON(ctx, p.endpoint+"/products/v4/search/keyword", header, body, &payload); err != nil {
		if common.IsStatus(err, http.StatusUnauthorized) {
			p.dropToken(clientID)
		}
		return nil, err
	}
	return payload, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// token returns a cached access token for clientID, fetching a new one when
// it expires within tokenLeeway.
func (p *Provider) token(ctx context.Context, clientID, clientSecret string) (string, error) {
	p.mu.Lock()
	cached, ok := p.tokens[clientID]
	p.mu.Unlock()
	if ok && p.now().Add(tokenLeeway).Before(cached.expiresAt) {
		return cached.value, nil
	}

	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("grant_type", "client_credentials")

	var resp tokenResponse
	if err := p.client.PostForm(ctx, p.endpoint+"/v1/oauth2/token", nil, form.Encode(), &resp); err != nil {
		return "", fmt.Errorf("digikey oauth: %w", err)
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", &common.APIError{Provider: providerName, Message: "empty access token"}
	}
	expiresIn := time.Duration(resp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = 10 * time.Minute
	}

	p.mu.Lock()
	p.tokens[clientID] = accessToken{value: resp.AccessToken, expiresAt: p.now().Add(expiresIn)}
	p.mu.Unlock()
	return resp.AccessToken, nil
}

func (p *Provider) dropToken(clientID string) {
	p.mu.Lock()
	delete(p.tokens, clientID)
	p.mu.Unlock()
}
