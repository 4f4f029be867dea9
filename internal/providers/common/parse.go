package common

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"componentsearch/searchservice/internal/domain"
)

var (
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
	numberPattern  = regexp.MustCompile(`\d[\d\s\x{00a0}\x{202f},.']*`)
	currencyTokens = []struct {
		token    string
		currency domain.Currency
	}{
		{"USD", domain.CurrencyUSD},
		{"US$", domain.CurrencyUSD},
		{"$", domain.CurrencyUSD},
		{"EUR", domain.CurrencyEUR},
		{"€", domain.CurrencyEUR},
		{"GBP", domain.CurrencyGBP},
		{"£", domain.CurrencyGBP},
		{"CNY", domain.CurrencyCNY},
		{"RMB", domain.CurrencyCNY},
		{"¥", domain.CurrencyCNY},
		{"RUB", domain.CurrencyRUB},
		{"₽", domain.CurrencyRUB},
		{"РУБ", domain.CurrencyRUB},
		{"Р.", domain.CurrencyRUB},
	}
)

func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// ParseMoney extracts an amount and its currency from strings such as
// "$0.45", "1 234,50 руб." or "€1.234,56". fallback is used when no currency
// marker is present.
func ParseMoney(raw string, fallback domain.Currency) (float64, domain.Currency, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, "", false
	}
	currency := fallback
	upper := strings.ToUpper(value)
	for _, tok := range currencyTokens {
		if strings.Contains(upper, tok.token) {
			currency = tok.currency
			break
		}
	}
	amount, ok := ParseDecimal(value)
	if !ok {
		return 0, "", false
	}
	return amount, currency, true
}

// ParseDecimal reads the first number in raw, accepting both "1,234.56" and
// "1 234,56" conventions.
func ParseDecimal(raw string) (float64, bool) {
	match := strings.TrimRight(numberPattern.FindString(raw), " ,.'\u00a0\u202f")
	if match == "" {
		return 0, false
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\u00a0' || r == '\u202f' || r == '\'' {
			return -1
		}
		return r
	}, match)

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		cleaned = resolveSingleSeparator(cleaned, ",")
	case lastDot >= 0:
		cleaned = resolveSingleSeparator(cleaned, ".")
	}

	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return parsed, true
}

// resolveSingleSeparator decides whether sep groups thousands or marks the
// decimal point when it is the only separator kind present.
func resolveSingleSeparator(value, sep string) string {
	parts := strings.Split(value, sep)
	if len(parts) > 2 {
		return strings.Join(parts, "")
	}
	intPart, fracPart := parts[0], parts[1]
	if len(fracPart) == 3 && intPart != "0" && intPart != "" && sep == "," {
		return intPart + fracPart
	}
	return intPart + "." + fracPart
}

// ParseQuantity reads the first integer in raw ("1,234 In Stock",
// "В наличии 15 шт"). It returns nil when raw carries no digits.
func ParseQuantity(raw string) *int {
	match := numberPattern.FindString(raw)
	if match == "" {
		return nil
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	if digits == "" {
		return nil
	}
	value, err := strconv.Atoi(digits)
	if err != nil || value < 0 {
		return nil
	}
	return &value
}
