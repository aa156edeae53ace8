package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowEndingAt(t *testing.T) {
	fire := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)

	w := WindowEndingAt(fire, 24*time.Hour, 0)
	assert.Equal(t, fire.Add(-24*time.Hour), w.Start)
	assert.Equal(t, fire, w.End)

	w = WindowEndingAt(fire, 24*time.Hour, 24*time.Hour)
	assert.Equal(t, fire.Add(-48*time.Hour), w.Start)
	assert.Equal(t, fire.Add(-24*time.Hour), w.End)
}

func TestDayWindow(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	w := DayWindow(time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC), loc)

	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, loc), w.Start)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, loc), w.End)
}

func TestWindowValidate(t *testing.T) {
	now := time.Now()
	assert.NoError(t, Window{Start: now, End: now.Add(time.Minute)}.Validate())
	assert.Error(t, Window{Start: now, End: now}.Validate())
	assert.Error(t, Window{Start: now, End: now.Add(-time.Minute)}.Validate())
	assert.Error(t, Window{End: now}.Validate())
}
