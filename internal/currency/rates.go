// Package currency converts provider prices to roubles using a rate table
// that is seeded with fallback rates and refreshed from the CBR daily feed.
package currency

import (
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/metrics"
)

var ErrUnknownCurrency = errors.New("unknown currency")

const sourceFallback = "fallback"

// Rates are roubles per one unit of the currency.
var fallbackRates = map[domain.Currency]float64{
	domain.CurrencyUSD: 95.50,
	domain.CurrencyEUR: 104.20,
	domain.CurrencyGBP: 121.80,
	domain.CurrencyCNY: 13.45,
}

type Snapshot struct {
	Rates     map[domain.Currency]float64 `json:"rates"`
	UpdatedAt time.Time                   `json:"updatedAt"`
	Source    string                      `json:"source"`
}

// Table is safe for concurrent use and implements domain.RateConverter.
type Table struct {
	mu        sync.RWMutex
	rates     map[domain.Currency]float64
	updatedAt time.Time
	source    string
}

func NewTable() *Table {
	t := &Table{}
	t.Replace(Snapshot{Rates: fallbackRates, Source: sourceFallback})
	return t
}

// Replace swaps the whole table. Non-positive or non-finite rates are skipped
// and RUB is always present at 1.
func (t *Table) Replace(snapshot Snapshot) {
	rates := make(map[domain.Currency]float64, len(snapshot.Rates)+1)
	for code, rate := range snapshot.Rates {
		code = domain.NormalizeCurrency(string(code))
		if code == "" || rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
			continue
		}
		rates[code] = rate
	}
	rates[domain.CurrencyRUB] = 1

	source := strings.TrimSpace(snapshot.Source)
	if source == "" {
		source = "unknown"
	}

	t.mu.Lock()
	t.rates = rates
	t.updatedAt = snapshot.UpdatedAt
	t.source = source
	t.mu.Unlock()
}

func (t *Table) Rate(code domain.Currency) (float64, error) {
	code = domain.NormalizeCurrency(string(code))
	t.mu.RLock()
	rate, ok := t.rates[code]
	t.mu.RUnlock()
	if !ok {
		return 0, ErrUnknownCurrency
	}
	return rate, nil
}

func (t *Table) ToRUB(amount float64, code domain.Currency) (float64, bool) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, false
	}
	rate, err := t.Rate(code)
	if err != nil {
		label := string(domain.NormalizeCurrency(string(code)))
		if label == "" {
			label = "none"
		}
		metrics.CurrencyMissesTotal.WithLabelValues(label).Inc()
		return 0, false
	}
	return amount * rate, true
}

func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rates := make(map[domain.Currency]float64, len(t.rates))
	for code, rate := range t.rates {
		rates[code] = rate
	}
	return Snapshot{Rates: rates, UpdatedAt: t.updatedAt, Source: t.source}
}
