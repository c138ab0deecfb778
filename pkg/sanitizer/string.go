package sanitizer

import (
	"strings"
	"unicode"
)

const MaxTextLength = 2000

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

func NormalizeName(name string) string {
	return TrimAndNormalize(name)
}

// NormalizeText collapses whitespace and truncates to MaxTextLength
// runes. Used for cancellation reasons and evaluation content.
func NormalizeText(s string) string {
	normalized := TrimAndNormalize(s)
	runes := []rune(normalized)
	if len(runes) > MaxTextLength {
		return string(runes[:MaxTextLength])
	}
	return normalized
}
