package pipeline

import (
	"fmt"
	"time"
)

// Window is the time range a run digests. It is half-open: a message
// stamped exactly at End belongs to the next window.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowEndingAt returns the span-long window that ends lag before t.
// With span and lag both 24h a morning run digests the whole of yesterday.
func WindowEndingAt(t time.Time, span, lag time.Duration) Window {
	end := t.Add(-lag)
	return Window{Start: end.Add(-span), End: end}
}

// DayWindow returns the calendar day containing day, in loc.
func DayWindow(day time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	d := day.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Validate rejects empty and inverted windows.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window: start and end are required")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("window: end %s is not after start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + ".." + w.End.Format(time.RFC3339)
}
