package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleaner_Clean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		urls bool
		want string
	}{
		{"whitespace and url", "  a\n\nb  https://x", true, "a b <URL>"},
		{"url kept", "see https://example.com/a?b=c now", false, "see https://example.com/a?b=c now"},
		{"www url", "go to www.example.org.", true, "go to <URL>"},
		{"emoji", "great \U0001F680\U0001F680 news ❤️", true, "great news"},
		{"flag and joiner", "\U0001F1FA\U0001F1F8 team \U0001F468‍\U0001F469‍\U0001F467", true, "team"},
		{"tabs and nbsp", "a\t\tb  c", true, "a b c"},
		{"only emoji", "\U0001F44D", true, ""},
		{"empty", "", true, ""},
		{"non-latin kept", "привет  мир", true, "привет мир"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cleaner{ReplaceURLs: tt.urls}.Clean(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 50))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))

	long := "ÄÖÜäöüßÄÖÜäöüßÄÖÜäöüßÄÖÜäöüßÄÖÜäöüßÄÖÜäöüßÄÖÜäöüßÄÖÜ"
	got := truncate(long, MaxUpstream)
	assert.Len(t, []rune(got), MaxUpstream)
	assert.Equal(t, "...", string([]rune(got)[47:]))
}
