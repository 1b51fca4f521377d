package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// FrequencyKind names one of the supported recurrence policies.
type FrequencyKind string

const (
	FrequencyOneTime    FrequencyKind = "one_time"
	FrequencyDaily      FrequencyKind = "daily"
	FrequencyWeekly     FrequencyKind = "weekly"
	FrequencyCustomDays FrequencyKind = "custom_days"
)

var (
	// ErrUnknownFrequency is returned for a frequency kind outside the supported set.
	ErrUnknownFrequency = errors.New("frequency must be one of: one_time, daily, weekly, custom_days")

	// ErrMissingDate is returned when a one-time frequency carries no date.
	ErrMissingDate = errors.New("one-time frequency requires a date")

	// ErrMissingWeekday is returned when a weekly frequency carries no weekday.
	ErrMissingWeekday = errors.New("weekly frequency requires a weekday")

	// ErrNoWeekdays is returned when a custom-days frequency has an empty set.
	ErrNoWeekdays = errors.New("custom days requires at least one weekday")
)

// Frequency is the recurrence policy of a reminder. Exactly one of the
// payload fields is meaningful, selected by Kind:
//   - FrequencyOneTime:    Date
//   - FrequencyDaily:      none
//   - FrequencyWeekly:     Weekday
//   - FrequencyCustomDays: Days (non-empty, Monday-first, no duplicates)
type Frequency struct {
	Kind    FrequencyKind  `json:"kind"`
	Date    *Date          `json:"date,omitempty"`
	Weekday *time.Weekday  `json:"weekday,omitempty"`
	Days    []time.Weekday `json:"days,omitempty"`
}

// OneTime fires once on d.
func OneTime(d Date) Frequency {
	return Frequency{Kind: FrequencyOneTime, Date: &d}
}

// Daily fires every day.
func Daily() Frequency {
	return Frequency{Kind: FrequencyDaily}
}

// Weekly fires once a week on wd.
func Weekly(wd time.Weekday) Frequency {
	return Frequency{Kind: FrequencyWeekly, Weekday: &wd}
}

// CustomDays fires on each of the given weekdays. Duplicates are dropped and
// the set is stored Monday-first.
func CustomDays(days ...time.Weekday) Frequency {
	return Frequency{Kind: FrequencyCustomDays, Days: normalizeDays(days)}
}

// Validate checks that the payload matches Kind.
func (f Frequency) Validate() error {
	switch f.Kind {
	case FrequencyOneTime:
		if f.Date == nil || f.Date.IsZero() {
			return ErrMissingDate
		}
	case FrequencyDaily:
	case FrequencyWeekly:
		if f.Weekday == nil || *f.Weekday < time.Sunday || *f.Weekday > time.Saturday {
			return ErrMissingWeekday
		}
	case FrequencyCustomDays:
		if len(f.Days) == 0 {
			return ErrNoWeekdays
		}
		for _, d := range f.Days {
			if d < time.Sunday || d > time.Saturday {
				return ErrNoWeekdays
			}
		}
	default:
		return ErrUnknownFrequency
	}
	return nil
}

// Recurring reports whether the policy fires more than once.
func (f Frequency) Recurring() bool {
	return f.Kind != FrequencyOneTime
}

// Matches reports whether a recurring policy fires on wd. It is false for
// one-time policies, whose single date is handled separately.
func (f Frequency) Matches(wd time.Weekday) bool {
	switch f.Kind {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return f.Weekday != nil && *f.Weekday == wd
	case FrequencyCustomDays:
		for _, d := range f.Days {
			if d == wd {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy.
func (f Frequency) Clone() Frequency {
	out := Frequency{Kind: f.Kind}
	if f.Date != nil {
		d := *f.Date
		out.Date = &d
	}
	if f.Weekday != nil {
		wd := *f.Weekday
		out.Weekday = &wd
	}
	if f.Days != nil {
		out.Days = append([]time.Weekday(nil), f.Days...)
	}
	return out
}

// String renders the policy for chat listings, e.g. "Custom (Mon, Wed)".
func (f Frequency) String() string {
	switch f.Kind {
	case FrequencyOneTime:
		if f.Date != nil {
			return "One-time (" + f.Date.String() + ")"
		}
		return "One-time"
	case FrequencyDaily:
		return "Daily"
	case FrequencyWeekly:
		if f.Weekday != nil {
			return "Weekly (" + ShortWeekday(*f.Weekday) + ")"
		}
		return "Weekly"
	case FrequencyCustomDays:
		names := make([]string, 0, len(f.Days))
		for _, d := range f.Days {
			names = append(names, ShortWeekday(d))
		}
		return "Custom (" + strings.Join(names, ", ") + ")"
	}
	return fmt.Sprintf("Unknown(%s)", string(f.Kind))
}

func normalizeDays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return mondayIndex(out[i]) < mondayIndex(out[j]) })
	return out
}

func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
