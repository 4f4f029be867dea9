package digikey

import (
	"strings"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

// Payload is the v4 keyword search reply.
type Payload struct {
	Products         []Product     `json:"Products"`
	ProductsCount    int           `json:"ProductsCount"`
	ExactMatches     []Product     `json:"ExactMatches"`
	SearchLocaleUsed *searchLocale `json:"SearchLocaleUsed"`
}

type searchLocale struct {
	Site     string `json:"Site"`
	Language string `json:"Language"`
	Currency string `json:"Currency"`
}

type Product struct {
	ManufacturerProductNumber string             `json:"ManufacturerProductNumber"`
	Manufacturer              namedValue         `json:"Manufacturer"`
	Description               description        `json:"Description"`
	QuantityAvailable         *float64           `json:"QuantityAvailable"`
	ProductURL                string             `json:"ProductUrl"`
	PhotoURL                  string             `json:"PhotoUrl"`
	UnitPrice                 *float64           `json:"UnitPrice"`
	ProductVariations         []productVariation `json:"ProductVariations"`
	Parameters                []parameter        `json:"Parameters"`
}

type namedValue struct {
	Name string `json:"Name"`
}

type description struct {
	ProductDescription  string `json:"ProductDescription"`
	DetailedDescription string `json:"DetailedDescription"`
}

type productVariation struct {
	DigiKeyProductNumber            string         `json:"DigiKeyProductNumber"`
	PackageType                     namedValue     `json:"PackageType"`
	StandardPricing                 []pricingEntry `json:"StandardPricing"`
	QuantityAvailableforPackageType *float64       `json:"QuantityAvailableforPackageType"`
}

type pricingEntry struct {
	BreakQuantity int     `json:"BreakQuantity"`
	UnitPrice     float64 `json:"UnitPrice"`
}

type parameter struct {
	ParameterText string `json:"ParameterText"`
	ValueText     string `json:"ValueText"`
}

func (p Payload) currency() domain.Currency {
	if p.SearchLocaleUsed != nil {
		if c := domain.NormalizeCurrency(p.SearchLocaleUsed.Currency); c != "" {
			return c
		}
	}
	return domain.CurrencyUSD
}

func (p Payload) Normalize(conv domain.RateConverter) []domain.CanonicalRow {
	products := make([]Product, 0, len(p.ExactMatches)+len(p.Products))
	products = append(products, p.ExactMatches...)
	products = append(products, p.Products...)

	cur := p.currency()
	rows := make([]domain.CanonicalRow, 0, len(products))
	for _, product := range products {
		mpn := cleanValue(product.ManufacturerProductNumber)
		if mpn == "" {
			continue
		}
		desc := cleanValue(product.Description.ProductDescription)
		if desc == "" {
			desc = cleanValue(product.Description.DetailedDescription)
		}
		row := domain.CanonicalRow{
			MPN:              mpn,
			Title:            mpn,
			Manufacturer:     cleanValue(product.Manufacturer.Name),
			DescriptionShort: common.Truncate(desc, 200),
			PackageType:      product.parameter("Package / Case"),
			Packaging:        product.packaging(),
			Regions:          domain.Regions(domain.RegionUS, domain.RegionGlobal),
			Stock:            product.stock(),
			ImageURL:         strings.TrimSpace(product.PhotoURL),
			ProductURL:       strings.TrimSpace(product.ProductURL),
			PriceBreaks:      common.PriceBreaks(product.priceBreaks(cur), conv),
		}
		common.ApplyMinPrice(&row, conv)
		rows = append(rows, row)
	}
	return rows
}

func (product Product) stock() *int {
	if product.QuantityAvailable != nil && *product.QuantityAvailable >= 0 {
		return domain.IntPtr(int(*product.QuantityAvailable))
	}
	total := 0
	known := false
	for _, variation := range product.ProductVariations {
		if variation.QuantityAvailableforPackageType != nil && *variation.QuantityAvailableforPackageType >= 0 {
			total += int(*variation.QuantityAvailableforPackageType)
			known = true
		}
	}
	if !known {
		return nil
	}
	return &total
}

// priceBreaks merges the ladders of every packaging variation; the cheaper
// price per quantity survives in common.PriceBreaks.
func (product Product) priceBreaks(cur domain.Currency) []domain.PriceBreak {
	out := make([]domain.PriceBreak, 0)
	for _, variation := range product.ProductVariations {
		for _, entry := range variation.StandardPricing {
			out = append(out, domain.PriceBreak{Qty: entry.BreakQuantity, Price: entry.UnitPrice, Currency: cur})
		}
	}
	if len(out) == 0 && product.UnitPrice != nil && *product.UnitPrice > 0 {
		return common.SinglePrice(*product.UnitPrice, cur)
	}
	return out
}

func (product Product) packaging() string {
	for _, variation := range product.ProductVariations {
		if name := cleanValue(variation.PackageType.Name); name != "" {
			return name
		}
	}
	return ""
}

func (product Product) parameter(name string) string {
	for _, param := range product.Parameters {
		if strings.EqualFold(strings.TrimSpace(param.ParameterText), name) {
			return cleanValue(param.ValueText)
		}
	}
	return ""
}

// cleanValue drops the placeholders DigiKey uses for missing values.
func cleanValue(raw string) string {
	value := common.CleanHTMLText(raw)
	switch value {
	case "-", "N/A", "n/a":
		return ""
	}
	return value
}
