package refcache

import (
	"strings"
	"unicode"
)

// toSnake turns a reflected Go type name into a collection name:
// "StudyGroup" becomes "study_group", "HTTPLog2" becomes "http_log_2".
// Anything that is not a letter or digit collapses into a single underscore
// so generic suffixes like "Page[main.Course]" never leak into URL paths.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	sep := false
	underscore := func() {
		if !sep && b.Len() > 0 {
			b.WriteByte('_')
			sep = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					underscore()
				}
			}
			b.WriteRune(unicode.ToLower(r))
			sep = false
		case unicode.IsLower(r):
			b.WriteRune(r)
			sep = false
		case unicode.IsDigit(r):
			if i > 0 && unicode.IsLetter(runes[i-1]) {
				underscore()
			}
			b.WriteRune(r)
			sep = false
		default:
			underscore()
		}
	}

	return strings.Trim(b.String(), "_")
}
