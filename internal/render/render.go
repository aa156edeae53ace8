// Package render wraps a finished summary in the digest template and
// recognizes text that was produced by that template.
package render

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Defaults used when a Renderer field is empty.
const (
	DefaultStartMarker = "Chat digest"
	DefaultDisclaimer  = "This digest was generated automatically and may contain mistakes."
)

// Renderer formats digests as
//
//	<start marker>: <date or date range>
//
//	<summary>
//
//	<disclaimer>
//
// A digest too long for one message is posted in parts, each shaped the
// same way with a "(i/n)" counter after the marker.
type Renderer struct {
	start      string
	disclaimer string
	loc        *time.Location
	pattern    *regexp.Regexp
}

// New builds a Renderer. Dates are shown in loc; nil means UTC.
func New(startMarker, disclaimer string, loc *time.Location) *Renderer {
	if startMarker == "" {
		startMarker = DefaultStartMarker
	}
	if disclaimer == "" {
		disclaimer = DefaultDisclaimer
	}
	if loc == nil {
		loc = time.UTC
	}
	pattern := regexp.MustCompile(`(?s)^\s*` + regexp.QuoteMeta(startMarker) + `(?: \(\d+/\d+\))?: .*?\n\n.*\n\n` + regexp.QuoteMeta(disclaimer) + `\s*$`)
	return &Renderer{start: startMarker, disclaimer: disclaimer, loc: loc, pattern: pattern}
}

// Render wraps summary for the window [from, to).
func (r *Renderer) Render(summary string, from, to time.Time) string {
	return fmt.Sprintf("%s: %s\n\n%s\n\n%s", r.start, r.dateLabel(from, to), summary, r.disclaimer)
}

// IsSelfGenerated reports whether text has the shape Render or RenderParts
// produces.
func (r *Renderer) IsSelfGenerated(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return r.pattern.MatchString(text)
}

// dateLabel shows a single date when the window falls on one calendar day.
func (r *Renderer) dateLabel(from, to time.Time) string {
	first := from.In(r.loc)
	last := first
	if to.After(from) {
		last = to.Add(-time.Nanosecond).In(r.loc)
	}
	if first.Format(dateLayout) == last.Format(dateLayout) {
		return first.Format(dateLayout)
	}
	return first.Format(dateLayout) + " to " + last.Format(dateLayout)
}
