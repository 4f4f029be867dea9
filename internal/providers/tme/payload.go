package tme

import (
	"strings"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

type searchData struct {
	ProductList []Product `json:"ProductList"`
	Amount      int       `json:"Amount"`
}

type Product struct {
	Symbol                 string   `json:"Symbol"`
	OriginalSymbol         string   `json:"OriginalSymbol"`
	Producer               string   `json:"Producer"`
	Description            string   `json:"Description"`
	Category               string   `json:"Category"`
	Photo                  string   `json:"Photo"`
	ProductInformationPage string   `json:"ProductInformationPage"`
	ProductStatusList      []string `json:"ProductStatusList"`
}

type pricesData struct {
	Currency    string       `json:"Currency"`
	PriceType   string       `json:"PriceType"`
	ProductList []priceEntry `json:"ProductList"`
}

type priceEntry struct {
	Symbol    string      `json:"Symbol"`
	PriceList []priceTier `json:"PriceList"`
	Amount    *int        `json:"Amount"`
}

type priceTier struct {
	Amount     int     `json:"Amount"`
	PriceValue float64 `json:"PriceValue"`
}

// Payload joins search hits with their prices. Prices is empty when the
// price call failed.
type Payload struct {
	Products []Product
	Prices   map[string]priceEntry
	Currency domain.Currency
}

func (p Payload) symbols(limit int) []string {
	out := make([]string, 0, len(p.Products))
	for _, product := range p.Products {
		symbol := strings.TrimSpace(product.Symbol)
		if symbol == "" {
			continue
		}
		out = append(out, symbol)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (p Payload) Normalize(conv domain.RateConverter) []domain.CanonicalRow {
	currency := p.Currency
	if currency == "" {
		currency = domain.CurrencyEUR
	}
	rows := make([]domain.CanonicalRow, 0, len(p.Products))
	for _, product := range p.Products {
		mpn := common.CleanHTMLText(product.OriginalSymbol)
		if mpn == "" {
			mpn = common.CleanHTMLText(product.Symbol)
		}
		if mpn == "" {
			continue
		}
		description := common.CleanHTMLText(product.Description)
		row := domain.CanonicalRow{
			MPN:              mpn,
			Title:            mpn,
			Manufacturer:     common.CleanHTMLText(product.Producer),
			DescriptionShort: common.Truncate(description, 200),
			Regions:          domain.Regions(domain.RegionEU),
			ImageURL:         absoluteURL(product.Photo),
			ProductURL:       absoluteURL(product.ProductInformationPage),
			PriceBreaks:      []domain.PriceBreak{},
		}
		if entry, ok := p.Prices[strings.TrimSpace(product.Symbol)]; ok {
			if entry.Amount != nil && *entry.Amount >= 0 {
				row.Stock = domain.IntPtr(*entry.Amount)
			}
			tiers := make([]domain.PriceBreak, 0, len(entry.PriceList))
			for _, tier := range entry.PriceList {
				tiers = append(tiers, domain.PriceBreak{Qty: tier.Amount, Price: tier.PriceValue, Currency: currency})
			}
			row.PriceBreaks = common.PriceBreaks(tiers, conv)
		}
		common.ApplyMinPrice(&row, conv)
		rows = append(rows, row)
	}
	return rows
}

// TME returns protocol-relative links ("//static.tme.eu/...").
func absoluteURL(raw string) string {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "//") {
		return "https:" + value
	}
	return value
}
