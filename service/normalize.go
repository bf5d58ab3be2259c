package service

import (
	"strings"
	"unicode"
)

// NormalizeName reduces a display name to the identifier form used by the
// registry name index and by generated SDK method names: lowercase,
// non-alphanumeric runs collapse to a single underscore, and a leading digit
// is prefixed so the result is a valid identifier. The function is
// idempotent.
func NormalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) && r < 128 || unicode.IsDigit(r) && r < 128 {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	normalized := strings.Trim(b.String(), "_")
	if normalized == "" {
		return ""
	}
	if unicode.IsDigit(rune(normalized[0])) {
		normalized = "n" + normalized
	}
	return normalized
}
