// Package shift works out which duty shift is running and how many
// scheduled assignments cover it.
package shift

import (
	"time"

	"citizen-reporting-system/pkg/models"
)

const (
	amStartHour = 6
	pmStartHour = 18
)

type Classifier struct {
	loc            *time.Location
	nightCarryOver bool
}

type Option func(*Classifier)

// WithLocation evaluates wall-clock times in loc instead of the time's own zone.
func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) { c.loc = loc }
}

// WithNightCarryOver makes the duty date between 00:00 and 06:00 the day the
// running night shift started, instead of the calendar date.
func WithNightCarryOver() Option {
	return func(c *Classifier) { c.nightCarryOver = true }
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) local(now time.Time) time.Time {
	if c.loc != nil {
		return now.In(c.loc)
	}
	return now
}

// Band returns AM for [06:00, 18:00) and PM otherwise.
func (c *Classifier) Band(now time.Time) models.Shift {
	h := c.local(now).Hour()
	if h >= amStartHour && h < pmStartHour {
		return models.ShiftAM
	}
	return models.ShiftPM
}

// DutyDate returns the day, at midnight in now's zone, whose schedules are
// counted at now: the calendar date unless night carry-over is enabled.
func (c *Classifier) DutyDate(now time.Time) time.Time {
	t := c.local(now)
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	if c.nightCarryOver && t.Hour() < amStartHour {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// ActiveCount counts staffed schedules on the duty date for the band running
// at now. A schedule's date is read by its own calendar fields.
func (c *Classifier) ActiveCount(now time.Time, schedules []models.DutySchedule) int {
	band := c.Band(now)
	y, m, d := c.DutyDate(now).Date()

	n := 0
	for _, s := range schedules {
		sy, sm, sd := s.Date.Date()
		if sy != y || sm != m || sd != d {
			continue
		}
		if s.Shift != band || !s.Staffed() {
			continue
		}
		n++
	}
	return n
}
