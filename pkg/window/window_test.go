package window

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestCycleBoundaries(t *testing.T) {
	c := Cycle(mustDate(t, "2024-03-10"))

	assert.Equal(t, "2024-03-10T18:00:00.000Z", FormatFetch(c.Evening.Start))
	assert.Equal(t, "2024-03-10T23:59:59.999Z", FormatFetch(c.Evening.End))
	assert.Equal(t, "2024-03-11T00:00:00.000Z", FormatFetch(c.Morning.Start))
	assert.Equal(t, "2024-03-11T05:59:59.999Z", FormatFetch(c.Morning.End))

	ws := c.Windows()
	require.Len(t, ws, 2)
	assert.Equal(t, c.Evening, ws[0])
	assert.Equal(t, c.Morning, ws[1])
}

func TestCycleAcrossMonthAndYearEnd(t *testing.T) {
	c := Cycle(mustDate(t, "2023-12-31"))
	assert.Equal(t, "2024-01-01T00:00:00.000Z", FormatFetch(c.Morning.Start))

	leap := Cycle(mustDate(t, "2024-02-28"))
	assert.Equal(t, "2024-02-29T00:00:00.000Z", FormatFetch(leap.Morning.Start))
}

func TestCycleIgnoresTimeOfDay(t *testing.T) {
	d := time.Date(2024, 3, 10, 14, 37, 12, 0, time.UTC)
	assert.Equal(t, Cycle(mustDate(t, "2024-03-10")), Cycle(d))
}

func TestCycleSpan(t *testing.T) {
	span := Cycle(mustDate(t, "2024-03-10")).Span()
	assert.Equal(t, "2024-03-10T18:00:00.000Z", FormatFetch(span.Start))
	assert.Equal(t, "2024-03-11T06:00:00.000Z", FormatFetch(span.End))
	assert.Equal(t, 12*time.Hour, span.Duration())
}

func TestNightCycleContains(t *testing.T) {
	c := Cycle(mustDate(t, "2024-03-10"))

	tests := []struct {
		ts   string
		want bool
	}{
		{"2024-03-10T18:00:00.000Z", true},
		{"2024-03-10T23:59:59.999Z", true},
		{"2024-03-11T00:00:00.000Z", true},
		{"2024-03-11T05:59:59.999Z", true},
		{"2024-03-10T17:59:59.999Z", false},
		{"2024-03-10T03:00:00.000Z", false},
		{"2024-03-11T06:00:00.000Z", false},
		{"2024-03-11T19:00:00.000Z", false},
		{"2024-03-09T22:00:00.000Z", false},
		{"2024-03-12T01:00:00.000Z", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.ts, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Contains(tt.ts))
		})
	}
}

func TestHourUsesWrittenOffset(t *testing.T) {
	h, ok := Hour("2024-03-10T19:30:00+02:00")
	require.True(t, ok)
	assert.Equal(t, 19, h)

	h, ok = Hour("2024-03-10T05:15:00")
	require.True(t, ok)
	assert.Equal(t, 5, h)

	h, ok = Hour("2024-03-10 21:00:00")
	require.True(t, ok)
	assert.Equal(t, 21, h)
}

func TestHourClassificationIsExhaustive(t *testing.T) {
	for h := 0; h < 24; h++ {
		ts := fmt.Sprintf("2024-03-10T%02d:30:00.000Z", h)
		out := IsOutOfHours(ts)
		biz := IsBusinessHours(ts)
		assert.NotEqual(t, out, biz, "hour %d must be exactly one of out-of-hours/business", h)
		assert.Equal(t, IsOutOfHoursHour(h), out)
		assert.Equal(t, IsBusinessHour(h), biz)
	}
}

func TestClassifiersFailSoft(t *testing.T) {
	for _, ts := range []string{"", "not-a-time", "2024-13-45T99:00:00Z"} {
		assert.False(t, IsOutOfHours(ts), ts)
		assert.False(t, IsBusinessHours(ts), ts)
		_, ok := Hour(ts)
		assert.False(t, ok, ts)
	}
}

func TestParseTimestampEmpty(t *testing.T) {
	_, err := ParseTimestamp("")
	assert.ErrorIs(t, err, ErrEmptyTimestamp)
}

func TestBusinessHoursAndDay(t *testing.T) {
	d := mustDate(t, "2024-03-10")

	bh := BusinessHours(d)
	assert.True(t, bh.Contains(d.Add(6*time.Hour)))
	assert.True(t, bh.Contains(d.Add(17*time.Hour+59*time.Minute)))
	assert.False(t, bh.Contains(d.Add(18*time.Hour)))

	day := Day(d)
	assert.Equal(t, 24*time.Hour, day.Duration())
	assert.True(t, day.Contains(d))
	assert.False(t, day.Contains(d.AddDate(0, 0, 1)))
}

func TestDateHelpers(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-10T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", FormatDate(ts))
	assert.Equal(t, mustDate(t, "2024-03-10"), DateOf(ts))

	_, err = ParseDate("10/03/2024")
	assert.Error(t, err)
}
