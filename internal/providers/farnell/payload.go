package farnell

import (
	"net/url"
	"strings"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

// Store currencies by storeInfo.id; unknown stores price in GBP.
var storeCurrencies = map[string]domain.Currency{
	"uk.farnell.com":    domain.CurrencyGBP,
	"ie.farnell.com":    domain.CurrencyEUR,
	"de.farnell.com":    domain.CurrencyEUR,
	"fr.farnell.com":    domain.CurrencyEUR,
	"it.farnell.com":    domain.CurrencyEUR,
	"es.farnell.com":    domain.CurrencyEUR,
	"nl.farnell.com":    domain.CurrencyEUR,
	"at.farnell.com":    domain.CurrencyEUR,
	"be.farnell.com":    domain.CurrencyEUR,
	"fi.farnell.com":    domain.CurrencyEUR,
	"ch.farnell.com":    "CHF",
	"pl.farnell.com":    "PLN",
	"www.newark.com":    domain.CurrencyUSD,
	"canada.newark.com": "CAD",
	"mexico.newark.com": domain.CurrencyUSD,
	"cn.element14.com":  domain.CurrencyCNY,
	"sg.element14.com":  "SGD",
	"au.element14.com":  "AUD",
	"in.element14.com":  "INR",
}

// Payload is the keyword search reply plus the store it came from.
type Payload struct {
	KeywordSearchReturn *searchReturn `json:"keywordSearchReturn"`
	Fault               *fault        `json:"Fault"`

	Region string `json:"-"`
	Term   string `json:"-"`
}

type fault struct {
	Code        string `json:"Code"`
	Description string `json:"Description"`
	Reason      string `json:"Reason"`
}

func (f *fault) message() string {
	for _, value := range []string{f.Description, f.Reason, f.Code} {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return "unknown fault"
}

type searchReturn struct {
	NumberOfResults int       `json:"numberOfResults"`
	Products        []Product `json:"products"`
}

type Product struct {
	SKU                              string      `json:"sku"`
	DisplayName                      string      `json:"displayName"`
	BrandName                        string      `json:"brandName"`
	VendorName                       string      `json:"vendorName"`
	TranslatedManufacturerPartNumber string      `json:"translatedManufacturerPartNumber"`
	ManufacturerPartNumber           string      `json:"manufacturerPartNumber"`
	PackSize                         *int        `json:"packSize"`
	UnitOfMeasure                    string      `json:"unitOfMeasure"`
	Packaging                        string      `json:"packaging"`
	Prices                           []priceBand `json:"prices"`
	Stock                            *stockInfo  `json:"stock"`
	Inv                              *int        `json:"inv"`
	Image                            *imageInfo  `json:"image"`
	ProductURL                       string      `json:"productURL"`
	Attributes                       []attribute `json:"attributes"`
}

type priceBand struct {
	From int     `json:"from"`
	To   int     `json:"to"`
	Cost float64 `json:"cost"`
}

type stockInfo struct {
	Level *int `json:"level"`
}

type imageInfo struct {
	BaseName string `json:"baseName"`
	VrntPath string `json:"vrntPath"`
}

type attribute struct {
	AttributeLabel string `json:"attributeLabel"`
	AttributeValue string `json:"attributeValue"`
}

// UsedQuery reports the element14 search term.
func (p Payload) UsedQuery() string {
	return p.Term
}

func (p Payload) currency() domain.Currency {
	if c, ok := storeCurrencies[p.region()]; ok {
		return c
	}
	return domain.CurrencyGBP
}

func (p Payload) region() string {
	if p.Region == "" {
		return DefaultRegion
	}
	return p.Region
}

// Newark and element14 stores serve the Americas and APAC; Farnell stores
// serve Europe.
func (p Payload) regions() []domain.Region {
	region := p.region()
	if strings.Contains(region, "newark") || strings.Contains(region, "element14") {
		return domain.Regions(domain.RegionUS)
	}
	return domain.Regions(domain.RegionEU)
}

func (p Payload) Normalize(conv domain.RateConverter) []domain.CanonicalRow {
	if p.KeywordSearchReturn == nil {
		return []domain.CanonicalRow{}
	}
	region := p.region()
	cur := p.currency()
	rows := make([]domain.CanonicalRow, 0, len(p.KeywordSearchReturn.Products))
	for _, product := range p.KeywordSearchReturn.Products {
		mpn := common.CleanHTMLText(product.TranslatedManufacturerPartNumber)
		if mpn == "" {
			mpn = common.CleanHTMLText(product.ManufacturerPartNumber)
		}
		if mpn == "" {
			continue
		}
		manufacturer := common.CleanHTMLText(product.BrandName)
		if manufacturer == "" {
			manufacturer = common.CleanHTMLText(product.VendorName)
		}
		description := common.CleanHTMLText(product.DisplayName)
		row := domain.CanonicalRow{
			MPN:              mpn,
			Title:            mpn,
			Manufacturer:     manufacturer,
			DescriptionShort: common.Truncate(description, 200),
			PackageType:      product.attribute("Transistor Case Style", "IC Case / Package", "Case Style"),
			Packaging:        common.CleanHTMLText(product.Packaging),
			Regions:          p.regions(),
			Stock:            product.stock(),
			ImageURL:         product.imageURL(region),
			ProductURL:       product.productURL(region),
			PriceBreaks:      common.PriceBreaks(product.priceBreaks(cur), conv),
		}
		common.ApplyMinPrice(&row, conv)
		rows = append(rows, row)
	}
	return rows
}

func (product Product) stock() *int {
	if product.Stock != nil && product.Stock.Level != nil {
		return domain.IntPtr(*product.Stock.Level)
	}
	if product.Inv != nil {
		return domain.IntPtr(*product.Inv)
	}
	return nil
}

func (product Product) priceBreaks(cur domain.Currency) []domain.PriceBreak {
	out := make([]domain.PriceBreak, 0, len(product.Prices))
	for _, band := range product.Prices {
		qty := band.From
		if qty <= 0 {
			qty = 1
		}
		out = append(out, domain.PriceBreak{Qty: qty, Price: band.Cost, Currency: cur})
	}
	return out
}

func (product Product) imageURL(region string) string {
	if product.Image == nil {
		return ""
	}
	base := strings.TrimSpace(product.Image.BaseName)
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return "https://" + region + base
}

func (product Product) productURL(region string) string {
	if link := strings.TrimSpace(product.ProductURL); link != "" {
		return link
	}
	sku := strings.TrimSpace(product.SKU)
	if sku == "" {
		return ""
	}
	return "https://" + region + "/search?st=" + url.QueryEscape(sku)
}

func (product Product) attribute(labels ...string) string {
	for _, label := range labels {
		for _, attr := range product.Attributes {
			if strings.EqualFold(strings.TrimSpace(attr.AttributeLabel), label) {
				return common.CleanHTMLText(attr.AttributeValue)
			}
		}
	}
	return ""
}
