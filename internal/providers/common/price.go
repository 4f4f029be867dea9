package common

import (
	"math"
	"sort"

	"componentsearch/searchservice/internal/domain"
)

// PriceBreaks validates, converts and sorts a provider's quantity ladder.
// Tiers with a non-positive quantity or an unusable price are dropped; when
// two tiers share a quantity the cheaper one is kept.
func PriceBreaks(raw []domain.PriceBreak, conv domain.RateConverter) []domain.PriceBreak {
	byQty := make(map[int]domain.PriceBreak, len(raw))
	for _, pb := range raw {
		if pb.Qty <= 0 || pb.Price < 0 || math.IsNaN(pb.Price) || math.IsInf(pb.Price, 0) {
			continue
		}
		pb.Currency = domain.NormalizeCurrency(string(pb.Currency))
		pb.PriceRUB = nil
		if conv != nil && pb.Currency != "" {
			if rub, ok := conv.ToRUB(pb.Price, pb.Currency); ok {
				pb.PriceRUB = domain.FloatPtr(rub)
			}
		}
		if prev, ok := byQty[pb.Qty]; ok && prev.Price <= pb.Price {
			continue
		}
		byQty[pb.Qty] = pb
	}

	out := make([]domain.PriceBreak, 0, len(byQty))
	for _, pb := range byQty {
		out = append(out, pb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Qty < out[j].Qty })
	return out
}

// ApplyMinPrice sets the row's minimum unit price from its ladder. The
// original amount and currency are kept even when no rouble rate is known.
func ApplyMinPrice(row *domain.CanonicalRow, conv domain.RateConverter) {
	row.MinPrice = nil
	row.MinCurrency = ""
	row.MinPriceRUB = nil

	var best *domain.PriceBreak
	for i := range row.PriceBreaks {
		pb := &row.PriceBreaks[i]
		if best == nil || lessPrice(*pb, *best) {
			best = pb
		}
	}
	if best == nil {
		return
	}
	row.MinPrice = domain.FloatPtr(best.Price)
	row.MinCurrency = best.Currency
	if best.PriceRUB != nil {
		row.MinPriceRUB = domain.FloatPtr(*best.PriceRUB)
		return
	}
	if conv != nil && best.Currency != "" {
		if rub, ok := conv.ToRUB(best.Price, best.Currency); ok {
			row.MinPriceRUB = domain.FloatPtr(rub)
		}
	}
}

// Mixed-currency ladders compare in roubles when both sides are converted.
func lessPrice(a, b domain.PriceBreak) bool {
	if a.Currency != b.Currency && a.PriceRUB != nil && b.PriceRUB != nil {
		return *a.PriceRUB < *b.PriceRUB
	}
	return a.Price < b.Price
}

// SinglePrice builds a one-tier ladder for providers that only report one
// unit price.
func SinglePrice(price float64, currency domain.Currency) []domain.PriceBreak {
	return []domain.PriceBreak{{Qty: 1, Price: price, Currency: currency}}
}
