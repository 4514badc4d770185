package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims free text such as dispute reasons and delivery notes.
// Control characters are dropped, runs of whitespace collapse to one space,
// and the result is cut to maxLen runes when maxLen > 0.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	space := false
	runes := 0
	for _, r := range strings.TrimSpace(input) {
		if maxLen > 0 && runes >= maxLen {
			break
		}
		switch {
		case unicode.IsSpace(r):
			if space {
				continue
			}
			space = true
			r = ' '
		case unicode.IsControl(r):
			continue
		default:
			space = false
		}
		b.WriteRune(r)
		runes++
	}
	return strings.TrimSpace(b.String())
}
