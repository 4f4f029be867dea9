package search

import (
	"math"

	"componentsearch/searchservice/internal/domain"
)

// Dedupe keeps one row per case-insensitive mpn. The winner of a group is the
// row with the lower rouble price, then the higher stock, then more populated
// optional fields, then the earlier position. Groups keep first-seen order and
// rows without an mpn are dropped.
func Dedupe(rows []domain.CanonicalRow) []domain.CanonicalRow {
	out := make([]domain.CanonicalRow, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		key := row.MPNKey()
		if key == "" {
			continue
		}
		pos, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, row)
			continue
		}
		if beats(row, out[pos]) {
			out[pos] = row
		}
	}
	return out
}

// beats reports whether candidate strictly wins over incumbent.
func beats(candidate, incumbent domain.CanonicalRow) bool {
	cp, ip := rubPrice(candidate), rubPrice(incumbent)
	if cp != ip {
		return cp < ip
	}
	cs, is := stockOrZero(candidate), stockOrZero(incumbent)
	if cs != is {
		return cs > is
	}
	return infoScore(candidate) > infoScore(incumbent)
}

func rubPrice(row domain.CanonicalRow) float64 {
	if row.MinPriceRUB == nil || math.IsNaN(*row.MinPriceRUB) {
		return math.Inf(1)
	}
	return *row.MinPriceRUB
}

func stockOrZero(row domain.CanonicalRow) int {
	if row.Stock == nil {
		return 0
	}
	return *row.Stock
}

func infoScore(row domain.CanonicalRow) int {
	score := 0
	if row.Manufacturer != "" {
		score++
	}
	if row.DescriptionShort != "" {
		score++
	}
	if row.ImageURL != "" {
		score++
	}
	if len(row.PriceBreaks) > 0 {
		score++
	}
	return score
}
