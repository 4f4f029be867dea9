package search

import (
	"reflect"
	"testing"

	"componentsearch/searchservice/internal/domain"
)

func TestRankExactMatchFirst(t *testing.T) {
	rows := []domain.CanonicalRow{
		part("LM317LZ", 1, 10000),
		part("LM317T-ST", 2, 5000),
		{MPN: "lm317t", MinPriceRUB: domain.FloatPtr(999)},
		part("LM317AEMP", 0.5, 100),
	}

	ranked := Rank(rows, "LM317T")

	if ranked[0].MPN != "lm317t" {
		t.Fatalf("exact match must rank first regardless of price and stock, got %v", mpns(ranked))
	}
}

func TestRankMPNMatchBeatsTitleMatch(t *testing.T) {
	rows := []domain.CanonicalRow{
		{MPN: "XYZ9999", Title: "LM317 replacement", MinPriceRUB: domain.FloatPtr(1), Stock: domain.IntPtr(100)},
		{MPN: "LM317T", Title: "Voltage regulator", MinPriceRUB: domain.FloatPtr(80), Stock: domain.IntPtr(1)},
	}

	ranked := Rank(rows, "LM317")

	if got := mpns(ranked); !reflect.DeepEqual(got, []string{"LM317T", "XYZ9999"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestRankTieBreakers(t *testing.T) {
	inStock := part("AMS1117-3.3", 30, 10)
	inStock.Source = "b"
	outOfStock := part("AMS1117-5.0", 5, 0)
	outOfStock.Source = "a"
	cheaper := part("AMS1117-1.8", 20, 3)
	cheaper.Source = "z"
	sameAsCheaperA := part("AMS1117-ADJ", 20, 3)
	sameAsCheaperA.Source = "c"
	described := part("SPX1117", 100, 0)
	described.DescriptionShort = "AMS1117 compatible LDO"
	unpriced := domain.CanonicalRow{MPN: "AMS1117-2.5", Stock: domain.IntPtr(1)}

	rows := []domain.CanonicalRow{outOfStock, unpriced, described, inStock, cheaper, sameAsCheaperA}
	ranked := Rank(rows, "ams1117")

	want := []string{"AMS1117-ADJ", "AMS1117-1.8", "AMS1117-3.3", "AMS1117-2.5", "AMS1117-5.0", "SPX1117"}
	if got := mpns(ranked); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order\n got %v\nwant %v", got, want)
	}
}

func TestRankDescriptionMatchBeatsNoMatch(t *testing.T) {
	plain := part("NE555P", 1, 100)
	described := part("ICM7555", 50, 0)
	described.DescriptionShort = "CMOS version of the 555 timer"

	ranked := Rank([]domain.CanonicalRow{plain, described}, "555 timer")

	if ranked[0].MPN != "ICM7555" {
		t.Fatalf("description match must rank above no match, got %v", mpns(ranked))
	}
}

func TestRankIsStableForEqualRows(t *testing.T) {
	rows := []domain.CanonicalRow{part("X1", 5, 1), part("X2", 5, 1), part("X3", 5, 1)}
	for i := range rows {
		rows[i].Source = "same"
	}

	ranked := Rank(rows, "nothing")

	if got := mpns(ranked); !reflect.DeepEqual(got, []string{"X1", "X2", "X3"}) {
		t.Fatalf("equal rows must keep input order, got %v", got)
	}
}

func TestRankDoesNotModifyInput(t *testing.T) {
	rows := []domain.CanonicalRow{part("B", 2, 1), part("A", 1, 1)}
	before := mpns(rows)

	Rank(rows, "a")

	if got := mpns(rows); !reflect.DeepEqual(got, before) {
		t.Fatalf("input reordered to %v", got)
	}
}
