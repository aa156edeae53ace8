package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// maxPartRounds bounds the search for a stable part count; the count only
// grows when a longer "(i/n)" counter pushes a chunk over the limit.
const maxPartRounds = 4

// RenderParts renders summary as messages of at most limit runes. A digest
// that fits is returned as the single Render output. Otherwise the summary
// is split on line breaks and every part gets the marker with an "(i/n)"
// counter, the date label and the disclaimer, so IsSelfGenerated holds for
// each part on its own.
func (r *Renderer) RenderParts(summary string, from, to time.Time, limit int) []string {
	whole := r.Render(summary, from, to)
	if limit < 1 || utf8.RuneCountInString(whole) <= limit {
		return []string{whole}
	}

	label := r.dateLabel(from, to)
	total := 2
	for round := 0; round < maxPartRounds; round++ {
		overhead := utf8.RuneCountInString(r.part(total, total, label, ""))
		if overhead >= limit {
			break
		}
		chunks := nonEmpty(Split(summary, limit-overhead))
		if len(chunks) == 0 {
			break
		}
		if len(chunks) <= total {
			parts := make([]string, len(chunks))
			for i, c := range chunks {
				parts[i] = r.part(i+1, len(chunks), label, c)
			}
			return parts
		}
		total = len(chunks)
	}
	// the template alone does not fit; hand over the whole text
	return []string{whole}
}

func (r *Renderer) part(i, n int, label, body string) string {
	return fmt.Sprintf("%s (%d/%d): %s\n\n%s\n\n%s", r.start, i, n, label, body, r.disclaimer)
}

// Split cuts text into chunks of at most limit runes, preferring to break
// after a newline in the second half of a chunk. Concatenating the chunks
// gives back text.
func Split(text string, limit int) []string {
	runes := []rune(text)
	if limit < 1 || len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func nonEmpty(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if c = strings.Trim(c, "\n"); c != "" {
			out = append(out, c)
		}
	}
	return out
}
