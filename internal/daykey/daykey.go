// Package daykey handles the local calendar-day keys ("2006-01-02") that
// bucket every task and recurrence in the agenda.
package daykey

import (
	"errors"
	"fmt"
	"time"
)

const (
	Layout      = "2006-01-02"
	MonthLayout = "2006-01"
)

var ErrInvalidKey = errors.New("invalid day key")

// Format returns the local calendar day of t.
func Format(t time.Time) string {
	return t.In(time.Local).Format(Layout)
}

// Today returns the local day key for now.
func Today(now time.Time) string {
	return Format(now)
}

// Parse returns local midnight of the given day key.
func Parse(key string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, key, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidKey, key)
	}
	return t, nil
}

// Valid reports whether key is a canonical day key.
func Valid(key string) bool {
	t, err := Parse(key)
	return err == nil && t.Format(Layout) == key
}

// EndOfDay returns the last instant that still belongs to the day.
func EndOfDay(key string) (time.Time, error) {
	start, err := Parse(key)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// DaysBetween counts whole calendar days from -> to. Both keys are reduced to
// their date components, so DST transitions never change the count.
func DaysBetween(from, to string) (int, error) {
	a, err := Parse(from)
	if err != nil {
		return 0, err
	}
	b, err := Parse(to)
	if err != nil {
		return 0, err
	}
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24), nil
}

// AddDays shifts a key by n calendar days.
func AddDays(key string, n int) (string, error) {
	t, err := Parse(key)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(Layout), nil
}

// DayOfMonth returns the day component of key.
func DayOfMonth(key string) (int, error) {
	t, err := Parse(key)
	if err != nil {
		return 0, err
	}
	return t.Day(), nil
}

// MonthBounds returns the first and last day keys of a "2006-01" month.
func MonthBounds(month string) (string, string, error) {
	t, err := time.ParseInLocation(MonthLayout, month, time.Local)
	if err != nil {
		return "", "", fmt.Errorf("%w %q", ErrInvalidKey, month)
	}
	last := t.AddDate(0, 1, -1)
	return t.Format(Layout), last.Format(Layout), nil
}

// Normalize migrates legacy keys to canonical form. Keys carrying a time
// component (RFC 3339 timestamps) are truncated to their local calendar day.
// The second result reports whether the key was rewritten.
func Normalize(key string) (string, bool) {
	if Valid(key) {
		return key, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, key)
		} else {
			t, err = time.ParseInLocation(layout, key, time.Local)
		}
		if err == nil {
			return Format(t), true
		}
	}
	if len(key) > len(Layout) && Valid(key[:len(Layout)]) {
		return key[:len(Layout)], true
	}
	return key, false
}

// At places the wall clock of clock on the given day.
func At(key string, clock time.Time) (time.Time, error) {
	start, err := Parse(key)
	if err != nil {
		return time.Time{}, err
	}
	c := clock.In(time.Local)
	return time.Date(start.Year(), start.Month(), start.Day(), c.Hour(), c.Minute(), c.Second(), 0, time.Local), nil
}

// ParseClock parses an "HH:MM" time on the given day.
func ParseClock(key, hhmm string) (time.Time, error) {
	c, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	start, err := Parse(key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(start.Year(), start.Month(), start.Day(), c.Hour(), c.Minute(), 0, 0, time.Local), nil
}
