package mouser

import (
	"strings"

	"componentsearch/searchservice/internal/domain"
	"componentsearch/searchservice/internal/providers/common"
)

// Payload is the Search API reply.
type Payload struct {
	Errors        []apiError     `json:"Errors"`
	SearchResults *searchResults `json:"SearchResults"`
}

type apiError struct {
	Code         string `json:"Code"`
	Message      string `json:"Message"`
	PropertyName string `json:"PropertyName"`
}

type searchResults struct {
	NumberOfResult int    `json:"NumberOfResult"`
	Parts          []Part `json:"Parts"`
}

type Part struct {
	ManufacturerPartNumber string             `json:"ManufacturerPartNumber"`
	MouserPartNumber       string             `json:"MouserPartNumber"`
	Manufacturer           string             `json:"Manufacturer"`
	Description            string             `json:"Description"`
	Category               string             `json:"Category"`
	Availability           string             `json:"Availability"`
	AvailabilityInStock    string             `json:"AvailabilityInStock"`
	ImagePath              string             `json:"ImagePath"`
	ProductDetailURL       string             `json:"ProductDetailUrl"`
	PriceBreaks            []priceBreak       `json:"PriceBreaks"`
	ProductAttributes      []productAttribute `json:"ProductAttributes"`
}

type priceBreak struct {
	Quantity int    `json:"Quantity"`
	Price    string `json:"Price"`
	Currency string `json:"Currency"`
}

type productAttribute struct {
	AttributeName  string `json:"AttributeName"`
	AttributeValue string `json:"AttributeValue"`
}

func (p Payload) errorMessage() string {
	messages := make([]string, 0, len(p.Errors))
	for _, e := range p.Errors {
		msg := strings.TrimSpace(e.Message)
		if msg == "" {
			msg = strings.TrimSpace(e.Code)
		}
		if msg != "" {
			messages = append(messages, msg)
		}
	}
	return strings.Join(messages, "; ")
}

func (p Payload) Normalize(conv domain.RateConverter) []domain.CanonicalRow {
	if p.SearchResults == nil {
		return []domain.CanonicalRow{}
	}
	rows := make([]domain.CanonicalRow, 0, len(p.SearchResults.Parts))
	for _, part := range p.SearchResults.Parts {
		mpn := common.CleanHTMLText(part.ManufacturerPartNumber)
		if mpn == "" {
			continue
		}
		description := common.CleanHTMLText(part.Description)
		row := domain.CanonicalRow{
			MPN:              mpn,
			Title:            mpn,
			Manufacturer:     common.CleanHTMLText(part.Manufacturer),
			DescriptionShort: common.Truncate(description, 200),
			PackageType:      part.attribute("Package / Case"),
			Packaging:        part.attribute("Packaging"),
			Regions:          domain.Regions(domain.RegionUS),
			Stock:            part.stock(),
			ImageURL:         strings.TrimSpace(part.ImagePath),
			ProductURL:       strings.TrimSpace(part.ProductDetailURL),
			PriceBreaks:      common.PriceBreaks(part.priceBreaks(), conv),
		}
		common.ApplyMinPrice(&row, conv)
		rows = append(rows, row)
	}
	return rows
}

func (part Part) stock() *int {
	if qty := common.ParseQuantity(part.AvailabilityInStock); qty != nil {
		return qty
	}
	// "1,234 In Stock"; "On Order" carries no count.
	if strings.Contains(strings.ToLower(part.Availability), "in stock") {
		return common.ParseQuantity(part.Availability)
	}
	return nil
}

func (part Part) priceBreaks() []domain.PriceBreak {
	out := make([]domain.PriceBreak, 0, len(part.PriceBreaks))
	for _, pb := range part.PriceBreaks {
		fallback := domain.NormalizeCurrency(pb.Currency)
		if fallback == "" {
			fallback = domain.CurrencyUSD
		}
		price, currency, ok := common.ParseMoney(pb.Price, fallback)
		if !ok {
			continue
		}
		out = append(out, domain.PriceBreak{Qty: pb.Quantity, Price: price, Currency: currency})
	}
	return out
}

func (part Part) attribute(name string) string {
	for _, attr := range part.ProductAttributes {
		if strings.EqualFold(strings.TrimSpace(attr.AttributeName), name) {
			return common.CleanHTMLText(attr.AttributeValue)
		}
	}
	return ""
}
