// Package window computes the time windows used to bucket connection events.
//
// A night cycle anchored at date D is the evening of D (18:00-23:59) plus
// the morning of D+1 (00:00-05:59). Treating the two halves as one period
// keeps an overnight shift together instead of splitting it at midnight.
//
// Hour and date extraction always uses the wall clock as written in the
// timestamp. A "2024-03-01T19:30:00+02:00" event is a 19:00-hour event on
// 2024-03-01; no timezone conversion is applied.
package window

import (
	"errors"
	"time"
)

const (
	// DateLayout is the calendar date format used throughout (YYYY-MM-DD).
	DateLayout = "2006-01-02"

	// FetchLayout formats window boundaries for event source requests.
	FetchLayout = "2006-01-02T15:04:05.000Z"

	// EveningStartHour is the first out-of-hours hour of a day.
	EveningStartHour = 18

	// MorningEndHour is the first business hour of a day.
	MorningEndHour = 6
)

// lastMilli is the offset of the final millisecond in a window boundary.
const lastMilli = 999 * time.Millisecond

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

// ErrEmptyTimestamp is returned by ParseTimestamp for an empty string.
var ErrEmptyTimestamp = errors.New("window: empty timestamp")

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// NightCycle is the evening of Anchor plus the morning of the following day.
type NightCycle struct {
	Anchor  time.Time
	Evening Window
	Morning Window
}

// Cycle returns the night cycle anchored at the calendar date of d.
func Cycle(d time.Time) NightCycle {
	day := DateOf(d)
	next := day.AddDate(0, 0, 1)
	return NightCycle{
		Anchor: day,
		Evening: Window{
			Start: day.Add(EveningStartHour * time.Hour),
			End:   day.Add(23*time.Hour + 59*time.Minute + 59*time.Second + lastMilli),
		},
		Morning: Window{
			Start: next,
			End:   next.Add(5*time.Hour + 59*time.Minute + 59*time.Second + lastMilli),
		},
	}
}

// Windows returns the evening window followed by the morning window.
func (c NightCycle) Windows() []Window {
	return []Window{c.Evening, c.Morning}
}

// Span returns the whole cycle as a single window, [D 18:00, D+1 06:00).
func (c NightCycle) Span() Window {
	return Window{
		Start: c.Evening.Start,
		End:   c.Anchor.AddDate(0, 0, 1).Add(MorningEndHour * time.Hour),
	}
}

// Contains reports whether the timestamp belongs to this night cycle:
// the anchor date at or after 18:00, or the next date before 06:00.
// Unparsable timestamps never belong to a cycle.
func (c NightCycle) Contains(ts string) bool {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return false
	}
	return c.ContainsTime(t)
}

// ContainsTime is Contains for an already parsed timestamp.
func (c NightCycle) ContainsTime(t time.Time) bool {
	date := FormatDate(t)
	switch date {
	case FormatDate(c.Anchor):
		return t.Hour() >= EveningStartHour
	case FormatDate(c.Anchor.AddDate(0, 0, 1)):
		return t.Hour() < MorningEndHour
	}
	return false
}

// BusinessHours returns [D 06:00, D 18:00) for the date of d.
func BusinessHours(d time.Time) Window {
	day := DateOf(d)
	return Window{
		Start: day.Add(MorningEndHour * time.Hour),
		End:   day.Add(EveningStartHour * time.Hour),
	}
}

// Day returns the full calendar day of d, [D 00:00, D+1 00:00).
func Day(d time.Time) Window {
	day := DateOf(d)
	return Window{Start: day, End: day.AddDate(0, 0, 1)}
}

// ParseTimestamp parses an ISO-8601 timestamp. The returned time keeps the
// offset written in the string so Hour and date reflect the written values.
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, ErrEmptyTimestamp
	}
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, ts)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Hour extracts the written hour of a timestamp. ok is false when the
// timestamp cannot be parsed.
func Hour(ts string) (hour int, ok bool) {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return 0, false
	}
	return t.Hour(), true
}

// IsOutOfHoursHour reports hour >= 18 || hour < 6.
func IsOutOfHoursHour(hour int) bool {
	return hour >= EveningStartHour || hour < MorningEndHour
}

// IsBusinessHour reports 6 <= hour < 18.
func IsBusinessHour(hour int) bool {
	return hour >= MorningEndHour && hour < EveningStartHour
}

// IsOutOfHours reports whether ts is between 18:00 and 06:00.
// Unparsable timestamps are neither out-of-hours nor business hours.
func IsOutOfHours(ts string) bool {
	h, ok := Hour(ts)
	return ok && IsOutOfHoursHour(h)
}

// IsBusinessHours reports whether ts is between 06:00 and 18:00.
func IsBusinessHours(ts string) bool {
	h, ok := Hour(ts)
	return ok && IsBusinessHour(h)
}

// DateOf truncates t to midnight UTC of its written calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders the written calendar date of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatFetch renders a window boundary for an event source request.
func FormatFetch(t time.Time) string {
	return t.UTC().Format(FetchLayout)
}
