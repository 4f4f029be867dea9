package search

import (
	"sort"
	"strings"

	"componentsearch/searchservice/internal/domain"
)

type matchTuple struct {
	exact   int
	partial int
	text    int
	stock   int
	price   float64
}

// partial is 2 for an mpn substring match and 1 when only the title or the
// manufacturer contains the query.
func scoreRow(row domain.CanonicalRow, query string) matchTuple {
	var t matchTuple
	if query != "" {
		mpn := strings.ToLower(strings.TrimSpace(row.MPN))
		if mpn == query {
			t.exact = 1
		}
		switch {
		case strings.Contains(mpn, query):
			t.partial = 2
		case strings.Contains(strings.ToLower(row.Title), query),
			strings.Contains(strings.ToLower(row.Manufacturer), query):
			t.partial = 1
		}
		if strings.Contains(strings.ToLower(row.DescriptionShort), query) {
			t.text = 1
		}
	}
	if row.Stock != nil && *row.Stock > 0 {
		t.stock = 1
	}
	t.price = rubPrice(row)
	return t
}

// Rank returns rows ordered by match relevance, then cheaper first, then by
// source name. The input slice is not modified.
func Rank(rows []domain.CanonicalRow, query string) []domain.CanonicalRow {
	q := strings.ToLower(strings.TrimSpace(query))
	type scored struct {
		row   domain.CanonicalRow
		score matchTuple
	}
	items := make([]scored, len(rows))
	for i, row := range rows {
		items[i] = scored{row: row, score: scoreRow(row, q)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return compareRanked(items[i].score, items[j].score, items[i].row.Source, items[j].row.Source) < 0
	})
	out := make([]domain.CanonicalRow, len(items))
	for i, item := range items {
		out[i] = item.row
	}
	return out
}

// compareRanked returns -1 when left sorts first.
func compareRanked(left, right matchTuple, leftSource, rightSource string) int {
	for _, pair := range [][2]int{
		{left.exact, right.exact},
		{left.partial, right.partial},
		{left.text, right.text},
		{left.stock, right.stock},
	} {
		if pair[0] != pair[1] {
			if pair[0] > pair[1] {
				return -1
			}
			return 1
		}
	}
	if left.price != right.price {
		if left.price < right.price {
			return -1
		}
		return 1
	}
	return strings.Compare(leftSource, rightSource)
}
