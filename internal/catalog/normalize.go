package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes characters and drops combining marks, turning the
// macron vowels of Hepburn romanization (ō, ū) into their plain forms.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// NormalizeRomaji standardizes a romanized Japanese name for matching:
//  1. Lowercase and trim
//  2. Strip diacritics (Gotō -> goto, Yūkan -> yukan)
//  3. Treat hyphens and periods as word breaks, drop apostrophes
//  4. Collapse repeated whitespace
//
// Listings romanize the same smith a dozen ways; everything that touches
// name matching goes through this first.
func NormalizeRomaji(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	s = strings.NewReplacer(
		"-", " ",
		".", " ",
		",", " ",
		"'", "",
		"’", "",
	).Replace(s)

	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// likeEscaper escapes the characters SQL LIKE treats specially so user
// queries always match literally. Backslash doubles first so the other
// escapes survive.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike returns the query with LIKE wildcards escaped for use inside
// a pattern with backslash as the escape character.
func EscapeLike(q string) string {
	return likeEscaper.Replace(q)
}
