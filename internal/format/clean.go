package format

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// URLPlaceholder replaces URL-shaped substrings when URL replacement is on.
const URLPlaceholder = "<URL>"

var (
	// Pictographs, dingbats, flags, skin tones, joiners and variation selectors.
	emojiPattern = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{2B00}-\x{2BFF}\x{1F1E6}-\x{1F1FF}\x{FE00}-\x{FE0F}\x{200D}\x{20E3}\x{E0020}-\x{E007F}]`)
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	spacePattern = regexp.MustCompile(`[\s\p{Z}]+`)
)

// Cleaner normalizes message text before it reaches a prompt.
type Cleaner struct {
	ReplaceURLs bool
}

// Clean removes emoji, optionally replaces URLs, collapses every whitespace
// run to one space and trims.
func (c Cleaner) Clean(s string) string {
	s = emojiPattern.ReplaceAllString(s, "")
	if c.ReplaceURLs {
		s = urlPattern.ReplaceAllString(s, URLPlaceholder)
	}
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// truncate shortens s to at most limit runes, ending in "..." when cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return strings.TrimSpace(string(runes[:limit-3])) + "..."
}
