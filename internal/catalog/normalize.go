package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var honorifics = map[string]struct{}{
	"dr": {}, "dra": {}, "doctor": {}, "doutor": {}, "doutora": {}, "doc": {},
}

// normalize lowercases, folds accents and collapses whitespace so that
// "Dermatologia " and "dermatológia" compare equal.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// normalizeName also drops honorifics and punctuation: "Dra. Ana Silva" -> "ana silva".
func normalizeName(s string) string {
	fields := strings.FieldsFunc(normalize(s), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(".,?!;:", r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, ok := honorifics[f]; ok {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
