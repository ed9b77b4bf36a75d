package feedscan

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ScriptRange is one inclusive range of Unicode code points.
type ScriptRange struct {
	Lo rune
	Hi rune
}

// DefaultScriptRanges covers the Arabic script: the base block plus the
// Arabic Supplement and Arabic Extended-A blocks.
var DefaultScriptRanges = []ScriptRange{
	{Lo: 0x0600, Hi: 0x06FF},
	{Lo: 0x0750, Hi: 0x077F},
	{Lo: 0x08A0, Hi: 0x08FF},
}

// matchesScript reports whether text contains at least one code point in any
// of the configured script ranges. Empty text never matches.
func matchesScript(text string, ranges []ScriptRange) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		for _, sr := range ranges {
			if r >= sr.Lo && r <= sr.Hi {
				return true
			}
		}
	}
	return false
}

// normalizeText collapses runs of whitespace and applies NFKC normalization
// so that visually identical feed text compares equal during dedup.
func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFKC.String(s)
}
