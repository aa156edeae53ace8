package cron

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is one recurring digest. Each firing digests the Span-long window
// ending Lag before the firing time.
type Job struct {
	Name     string        `json:"name"`
	Schedule string        `json:"schedule"`
	Span     time.Duration `json:"span"`
	Lag      time.Duration `json:"lag"`
}

// Validate checks the name, the window and the schedule expression.
func (j *Job) Validate() error {
	if j.Name == "" {
		return &InvalidScheduleError{Schedule: j.Schedule, Message: "name is required"}
	}
	if j.Span <= 0 {
		return &InvalidScheduleError{Schedule: j.Schedule, Message: "span must be positive"}
	}
	if j.Lag < 0 {
		return &InvalidScheduleError{Schedule: j.Schedule, Message: "lag must not be negative"}
	}
	if _, err := parser.Parse(normalizeSchedule(j.Schedule)); err != nil {
		return &InvalidScheduleError{Schedule: j.Schedule, Message: err.Error()}
	}
	return nil
}

// normalizeSchedule accepts 5-field (standard) and 6-field (with seconds)
// expressions; 5-field ones fire at second 0.
func normalizeSchedule(schedule string) string {
	schedule = strings.TrimSpace(schedule)
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}
