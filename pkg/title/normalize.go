// Package title normalizes movie titles so the same film can be matched
// across services that spell it differently.
package title

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Apostrophes join ("Schindler's" -> "schindlers"); every other non
// alphanumeric rune splits words.
var punctuation = strings.NewReplacer("&", " and ", "'", "", "’", "")

var leadingArticles = map[string]bool{"the": true, "a": true, "an": true}

// Sequel numerals only. "i" and "x" stay words ("I, Robot", "American
// History X").
var sequelNumerals = map[string]int{
	"ii": 2, "iii": 3, "iv": 4, "v": 5, "vi": 6, "vii": 7, "viii": 8, "ix": 9,
}

// Clean reduces a title to a comparison form: lower case, no accents, no
// leading article in the title or its subtitle, sequel numerals as digits,
// words separated by single spaces.
func Clean(t string) string {
	s := punctuation.Replace(foldAccents(strings.ToLower(t)))

	var words []string
	for _, segment := range strings.Split(s, ":") {
		fields := strings.FieldsFunc(segment, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(fields) > 1 && leadingArticles[fields[0]] {
			fields = fields[1:]
		}
		for _, w := range fields {
			// A numeral opening the title is a word ("VII Days").
			if n, ok := sequelNumerals[w]; ok && len(words) > 0 {
				w = strconv.Itoa(n)
			}
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

// Key is the exact catalog join key for a title and release year. Only
// Unicode composition and surrounding space are normalized, so two spellings
// that differ in any visible way get different keys.
func Key(t string, year int) string {
	return norm.NFC.String(strings.TrimSpace(t)) + "\x00" + strconv.Itoa(year)
}

func foldAccents(s string) string {
	out, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		return s
	}
	return out
}
