package domain

import (
	"sort"
	"strings"
)

type Region string

const (
	RegionRU     Region = "RU"
	RegionEU     Region = "EU"
	RegionUS     Region = "US"
	RegionAsia   Region = "ASIA"
	RegionGlobal Region = "GLOBAL"
)

// ParseRegion maps loosely spelled region labels ("Global", "eu", "asia") onto
// the canonical set. Unknown labels report false.
func ParseRegion(raw string) (Region, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "RU", "RUS", "RUSSIA":
		return RegionRU, true
	case "EU", "EUROPE":
		return RegionEU, true
	case "US", "USA":
		return RegionUS, true
	case "ASIA", "CN", "CHINA":
		return RegionAsia, true
	case "GLOBAL", "WORLD", "WW":
		return RegionGlobal, true
	default:
		return "", false
	}
}

// Regions returns a sorted, duplicate-free region set.
func Regions(values ...Region) []Region {
	if len(values) == 0 {
		return []Region{}
	}
	seen := make(map[Region]struct{}, len(values))
	out := make([]Region, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type Currency string

const (
	CurrencyRUB Currency = "RUB"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCNY Currency = "CNY"
)

func NormalizeCurrency(raw string) Currency {
	return Currency(strings.ToUpper(strings.TrimSpace(raw)))
}

// RateConverter converts an amount in the given currency to roubles.
// ok is false when the currency is unknown or no rate is available.
type RateConverter interface {
	ToRUB(amount float64, currency Currency) (rub float64, ok bool)
}

type PriceBreak struct {
	Qty      int      `json:"qty"`
	Price    float64  `json:"price"`
	Currency Currency `json:"currency"`
	PriceRUB *float64 `json:"priceRub"`
}

// CanonicalRow is the provider-agnostic search result entry. Nil pointers mean
// "unknown": a nil Stock is distinct from a zero Stock.
type CanonicalRow struct {
	MPN              string       `json:"mpn"`
	Title            string       `json:"title"`
	Manufacturer     string       `json:"manufacturer"`
	DescriptionShort string       `json:"descriptionShort"`
	PackageType      string       `json:"packageType"`
	Packaging        string       `json:"packaging"`
	Regions          []Region     `json:"regions"`
	Stock            *int         `json:"stock"`
	MinPrice         *float64     `json:"minPrice"`
	MinCurrency      Currency     `json:"minCurrency,omitempty"`
	MinPriceRUB      *float64     `json:"minPriceRub"`
	ImageURL         string       `json:"imageUrl,omitempty"`
	ProductURL       string       `json:"productUrl"`
	Source           string       `json:"source"`
	PriceBreaks      []PriceBreak `json:"priceBreaks,omitempty"`
}

// MPNKey is the case-insensitive part identity used across providers.
func (r CanonicalRow) MPNKey() string {
	return strings.ToLower(strings.TrimSpace(r.MPN))
}

// Clone returns a deep copy so that merged or cached rows never share
// pointers with their origin.
func (r CanonicalRow) Clone() CanonicalRow {
	out := r
	if r.Regions != nil {
		out.Regions = make([]Region, len(r.Regions))
		copy(out.Regions, r.Regions)
	}
	out.Stock = cloneInt(r.Stock)
	out.MinPrice = cloneFloat(r.MinPrice)
	out.MinPriceRUB = cloneFloat(r.MinPriceRUB)
	if r.PriceBreaks != nil {
		out.PriceBreaks = make([]PriceBreak, len(r.PriceBreaks))
		for i, pb := range r.PriceBreaks {
			pb.PriceRUB = cloneFloat(pb.PriceRUB)
			out.PriceBreaks[i] = pb
		}
	}
	return out
}

// Payload is a provider's raw search response. Normalize is that provider's
// row normalizer: it must not fail on missing fields and returns an empty,
// non-nil slice when nothing usable was found.
type Payload interface {
	Normalize(conv RateConverter) []CanonicalRow
}

func IntPtr(value int) *int {
	return &value
}

func FloatPtr(value float64) *float64 {
	return &value
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func cloneFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
