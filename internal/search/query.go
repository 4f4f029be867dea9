package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxQueryRunes = 200

// Cyrillic letters that render like Latin ones. Part numbers typed on a
// Russian layout often mix them in.
var lookalikes = map[rune]rune{
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H', 'О': 'O',
	'Р': 'P', 'С': 'C', 'Т': 'T', 'Х': 'X', 'У': 'Y',
	'а': 'a', 'е': 'e', 'к': 'k', 'м': 'm', 'о': 'o', 'р': 'p', 'с': 'c',
	'т': 't', 'х': 'x', 'у': 'y',
}

// NormalizeQuery applies NFKC, collapses whitespace and folds Cyrillic
// look-alikes inside tokens that already contain Latin letters.
func NormalizeQuery(raw string) string {
	value := norm.NFKC.String(raw)
	tokens := strings.Fields(value)
	for i, token := range tokens {
		tokens[i] = foldToken(token)
	}
	return strings.Join(tokens, " ")
}

func foldToken(token string) string {
	hasLatin := false
	for _, r := range token {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			hasLatin = true
			break
		}
	}
	if !hasLatin {
		return token
	}
	for _, r := range token {
		if unicode.Is(unicode.Cyrillic, r) {
			if _, ok := lookalikes[r]; !ok {
				return token
			}
		}
	}
	return strings.Map(func(r rune) rune {
		if latin, ok := lookalikes[r]; ok {
			return latin
		}
		return r
	}, token)
}
