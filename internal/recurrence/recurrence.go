// Package recurrence computes when a reminder fires next.
//
// All evaluation happens in a single fixed-offset location: calendar days,
// weekdays and end dates are derived from the reference instant converted
// into that location, and an occurrence equal to the reference instant is
// treated as already consumed.
package recurrence

import (
	"time"

	"github.com/tbourn/go-reminder-bot/internal/domain"
)

// Calculator evaluates frequency policies in Location.
type Calculator struct {
	Location *time.Location
}

// New returns a Calculator for loc (UTC when nil).
func New(loc *time.Location) Calculator {
	return Calculator{Location: loc}
}

func (c Calculator) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Next returns the first occurrence of r's schedule strictly after ref.
// ok is false when the schedule is exhausted: a one-time reminder whose
// instant is not after ref, or a recurring reminder whose next matching day
// falls after its end date.
func (c Calculator) Next(r domain.Reminder, ref time.Time) (next time.Time, ok bool) {
	loc := c.loc()
	ref = ref.In(loc)

	switch r.Frequency.Kind {
	case domain.FrequencyOneTime:
		if r.Frequency.Date == nil {
			return time.Time{}, false
		}
		at := r.Frequency.Date.At(r.TimeOfDay, loc)
		if at.After(ref) {
			return at, true
		}
		return time.Time{}, false

	case domain.FrequencyDaily, domain.FrequencyWeekly, domain.FrequencyCustomDays:
		today := domain.DateOf(ref)
		// Eight days cover today's slot already being consumed plus a full week.
		for i := 0; i <= 7; i++ {
			day := today.AddDays(i)
			if r.EndDate != nil && day.After(*r.EndDate) {
				return time.Time{}, false
			}
			if !r.Frequency.Matches(day.Weekday()) {
				continue
			}
			at := day.At(r.TimeOfDay, loc)
			if at.After(ref) {
				return at, true
			}
		}
	}
	return time.Time{}, false
}

// Schedule sets r.NextFireAt and r.Status from Next(r, ref): Active with the
// next instant, or Expired with NextFireAt cleared. It returns whether the
// reminder stays active.
func (c Calculator) Schedule(r *domain.Reminder, ref time.Time) bool {
	next, ok := c.Next(*r, ref)
	if !ok {
		r.NextFireAt = nil
		r.Status = domain.StatusExpired
		return false
	}
	utc := next.UTC()
	r.NextFireAt = &utc
	r.Status = domain.StatusActive
	return true
}
