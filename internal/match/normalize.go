package match

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes free text into a comparison key: lowercase,
// trimmed, NFKD-folded (so accented letters compare equal to their base
// form), everything except letters, digits, underscores and spaces removed,
// and internal whitespace collapsed to single spaces.
//
// Normalize is total: any input yields a key, empty input yields "".
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = norm.NFKD.String(s)

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			lastSpace = false
		}
	}

	return strings.TrimRight(b.String(), " ")
}

// ContainsCyrillic reports whether s contains at least one Cyrillic rune.
func ContainsCyrillic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// Transliterate returns a Latin-script rendering of s when s contains
// Cyrillic text, and ok=false otherwise. It never fails: when the
// transliteration produces nothing usable the result degrades to absent.
func Transliterate(s string) (string, bool) {
	if !ContainsCyrillic(s) {
		return "", false
	}

	t := unidecode.Unidecode(s)
	if strings.TrimSpace(t) == "" {
		return "", false
	}
	return t, true
}
