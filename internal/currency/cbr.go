package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"componentsearch/searchservice/internal/domain"
)

const (
	DefaultCBREndpoint = "https://www.cbr-xml-daily.ru/daily_json.js"
	sourceCBR          = "cbr"
)

var requiredCurrencies = []domain.Currency{domain.CurrencyUSD, domain.CurrencyEUR, domain.CurrencyGBP}

type cbrPayload struct {
	Date   string `json:"Date"`
	Valute map[string]struct {
		CharCode string  `json:"CharCode"`
		Nominal  float64 `json:"Nominal"`
		Value    float64 `json:"Value"`
	} `json:"Valute"`
}

// CBRClient reads the Central Bank of Russia daily rates in JSON form.
type CBRClient struct {
	client   *http.Client
	endpoint string
}

func NewCBRClient(client *http.Client, endpoint string) *CBRClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultCBREndpoint
	}
	return &CBRClient{client: client, endpoint: endpoint}
}

func (c *CBRClient) Fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("cbr HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Snapshot{}, fmt.Errorf("read cbr response: %w", err)
	}
	return parseCBR(raw)
}

func parseCBR(raw []byte) (Snapshot, error) {
	var payload cbrPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("decode cbr response: %w", err)
	}
	if len(payload.Valute) == 0 {
		return Snapshot{}, fmt.Errorf("cbr response has no rates")
	}

	rates := make(map[domain.Currency]float64, len(payload.Valute))
	for key, item := range payload.Valute {
		code := domain.NormalizeCurrency(item.CharCode)
		if code == "" {
			code = domain.NormalizeCurrency(key)
		}
		if item.Nominal <= 0 || item.Value <= 0 {
			continue
		}
		rates[code] = item.Value / item.Nominal
	}
	for _, code := range requiredCurrencies {
		if _, ok := rates[code]; !ok {
			return Snapshot{}, fmt.Errorf("cbr response is missing %s", code)
		}
	}

	updatedAt := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(payload.Date)); err == nil {
		updatedAt = parsed.UTC()
	}
	return Snapshot{Rates: rates, UpdatedAt: updatedAt, Source: sourceCBR}, nil
}
