package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RecurrencePattern names the rule used to derive the next due date of a recurring task.
type RecurrencePattern string

const (
	RecurrenceNone     RecurrencePattern = "none"
	RecurrenceDaily    RecurrencePattern = "daily"
	RecurrenceWeekly   RecurrencePattern = "weekly"
	RecurrenceBiweekly RecurrencePattern = "biweekly"
	RecurrenceMonthly  RecurrencePattern = "monthly"
	RecurrenceYearly   RecurrencePattern = "yearly"
)

// customPrefix introduces the custom-interval family, e.g. "every:3d", "every:2w", "every:6m".
const customPrefix = "every:"

const maxCustomInterval = 365

// IntervalUnit is the calendar unit a recurrence steps by.
type IntervalUnit string

const (
	UnitDay   IntervalUnit = "d"
	UnitWeek  IntervalUnit = "w"
	UnitMonth IntervalUnit = "m"
)

// Interval is the parsed form of a recurrence pattern.
type Interval struct {
	Every int
	Unit  IntervalUnit
}

// CustomRecurrence builds a custom-interval pattern.
func CustomRecurrence(every int, unit IntervalUnit) RecurrencePattern {
	return RecurrencePattern(fmt.Sprintf("%s%d%s", customPrefix, every, unit))
}

// IsNone reports whether the pattern disables recurrence.
func (p RecurrencePattern) IsNone() bool {
	return p == "" || p == RecurrenceNone
}

// ParseRecurrence resolves a pattern string into an Interval. "none" and anything outside
// the closed set fail with ErrInvalidPattern.
func ParseRecurrence(raw string) (Interval, error) {
	switch RecurrencePattern(strings.ToLower(strings.TrimSpace(raw))) {
	case RecurrenceDaily:
		return Interval{Every: 1, Unit: UnitDay}, nil
	case RecurrenceWeekly:
		return Interval{Every: 1, Unit: UnitWeek}, nil
	case RecurrenceBiweekly:
		return Interval{Every: 2, Unit: UnitWeek}, nil
	case RecurrenceMonthly:
		return Interval{Every: 1, Unit: UnitMonth}, nil
	case RecurrenceYearly:
		return Interval{Every: 12, Unit: UnitMonth}, nil
	}

	value := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(value, customPrefix) || len(value) < len(customPrefix)+2 {
		return Interval{}, WrapError(ErrCodeInvalidPattern, ErrInvalidPattern.Message, fmt.Errorf("%q", raw))
	}
	body := value[len(customPrefix):]
	unit := IntervalUnit(body[len(body)-1:])
	n, err := strconv.Atoi(body[:len(body)-1])
	if err != nil || n < 1 || n > maxCustomInterval {
		return Interval{}, WrapError(ErrCodeInvalidPattern, ErrInvalidPattern.Message, fmt.Errorf("%q", raw))
	}
	switch unit {
	case UnitDay, UnitWeek, UnitMonth:
		return Interval{Every: n, Unit: unit}, nil
	}
	return Interval{}, WrapError(ErrCodeInvalidPattern, ErrInvalidPattern.Message, fmt.Errorf("%q", raw))
}

// NextDueDate computes the due date following base for the given pattern. It is pure:
// the same inputs always produce the same output. Clock time and location are preserved.
// Month steps keep the day of month, clipped to the last day of the target month.
func NextDueDate(base time.Time, pattern RecurrencePattern) (time.Time, error) {
	iv, err := ParseRecurrence(string(pattern))
	if err != nil {
		return time.Time{}, err
	}
	switch iv.Unit {
	case UnitDay:
		return base.AddDate(0, 0, iv.Every), nil
	case UnitWeek:
		return base.AddDate(0, 0, 7*iv.Every), nil
	default:
		return addMonthsClipped(base, iv.Every), nil
	}
}

// ShouldSpawnNextInstance reports whether completing a task spawns its next occurrence.
// The due date is not compared against the completion time.
func ShouldSpawnNextInstance(pattern RecurrencePattern, dueDate *time.Time) bool {
	return !pattern.IsNone() && dueDate != nil
}

// addMonthsClipped differs from time.AddDate, which normalizes Jan 31 + 1 month to Mar 3.
func addMonthsClipped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	return time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
