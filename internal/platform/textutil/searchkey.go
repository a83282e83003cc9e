package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var searchKeyFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SearchKey folds the provided parts into a lowercase key suitable for
// Firestore prefix queries. Diacritics are stripped and whitespace runs
// collapse to single spaces; empty parts are skipped.
func SearchKey(parts ...string) string {
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		folded, _, err := transform.String(searchKeyFolder, part)
		if err != nil {
			folded = part
		}
		folded = strings.ToLower(folded)
		fields = append(fields, strings.Fields(folded)...)
	}
	return strings.Join(fields, " ")
}
