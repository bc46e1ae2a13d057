package engine

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
)

var targetDate = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func ev(ts, mac string) models.ConnectionEvent {
	return models.ConnectionEvent{
		Organization:      "org-1",
		Network:           "HQ",
		Timestamp:         ts,
		EventType:         models.EventAssociation,
		ClientMac:         mac,
		ClientDescription: "device-" + mac,
		SSID:              "Corp",
	}
}

type recorder struct {
	calls    int
	analysis *models.Analysis
}

func (r *recorder) ObserveAnalysis(a *models.Analysis, _ time.Duration) {
	r.calls++
	r.analysis = a
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(opts ...Option) *Engine {
	return New(append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func runFor(d time.Time) *Run {
	return NewRun(d, quietLogger())
}

func find(t *testing.T, devices []models.DeviceRiskProfile, mac string) models.DeviceRiskProfile {
	t.Helper()
	for _, d := range devices {
		if d.MAC == mac {
			return d
		}
	}
	t.Fatalf("device %s not found", mac)
	return models.DeviceRiskProfile{}
}

func macs(devices []models.DeviceRiskProfile) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.MAC)
	}
	return out
}

func TestRegularBaselineDevice(t *testing.T) {
	events := []models.ConnectionEvent{
		ev("2024-03-04T19:00:00.000Z", "AA:AA"),
		ev("2024-03-04T22:00:00.000Z", "AA:AA"),
		ev("2024-03-06T20:00:00.000Z", "AA:AA"),
		ev("2024-03-08T21:00:00.000Z", "AA:AA"),
		ev("2024-03-09T02:00:00.000Z", "AA:AA"),
		ev("2024-03-10T19:00:00.000Z", "AA:AA"),
		ev("2024-03-11T01:00:00.000Z", "AA:AA"),
	}

	a := newTestEngine().Classify(runFor(targetDate), events)

	require.Len(t, a.TargetDateDevices, 1)
	require.Len(t, a.BaselineRegularDevices, 1)
	assert.Empty(t, a.AnomalousDevices)

	p := a.BaselineRegularDevices[0]
	assert.Equal(t, models.RiskBaselineRegular, p.RiskLevel)
	assert.Equal(t, 2, p.TargetDateConnections)
	assert.Equal(t, 5, p.BaselineConnections)
	assert.Equal(t, 6, p.DaysSeenOutOfHours)
	assert.Equal(t, "2024-03-10T19:00:00.000Z", p.FirstTargetConnection)
	assert.Equal(t, "2024-03-11T01:00:00.000Z", p.LastTargetConnection)
	assert.Equal(t, "Regular out-of-hours device: 5 baseline connections across 6 days. "+
		"Expected to be present during incident window.", p.RiskExplanation)
	assert.False(t, p.HasSessionDetail())

	assert.Equal(t, p, a.TargetDateDevices[0])
}

func TestTargetOnlyDeviceIsAnomalous(t *testing.T) {
	events := []models.ConnectionEvent{
		ev("2024-03-10T20:00:00.000Z", "BB:BB"),
		ev("2024-03-10T23:00:00.000Z", "BB:BB"),
		ev("2024-03-11T03:00:00.000Z", "BB:BB"),
	}

	a := newTestEngine().Classify(runFor(targetDate), events)

	require.Len(t, a.AnomalousDevices, 1)
	p := a.AnomalousDevices[0]
	assert.Equal(t, models.RiskAnomalousSuspicious, p.RiskLevel)
	assert.Equal(t, 3, p.TargetDateConnections)
	assert.Equal(t, 0, p.BaselineConnections)
	assert.Equal(t, "NEVER seen out-of-hours in 7-day baseline period. "+
		"This device appeared for the first time during incident window (3 connections on target date). "+
		"Could be: intruder device, stolen device, or employee device used during theft.", p.RiskExplanation)
	assert.Equal(t, []string{"BB:BB"}, macs(a.TargetDateDevices))
	assert.Empty(t, a.BaselineRegularDevices)
}

func TestLoiteringOverridesBaseline(t *testing.T) {
	events := []models.ConnectionEvent{
		ev("2024-03-05T20:00:00.000Z", "CC:CC"),
		ev("2024-03-06T21:00:00.000Z", "CC:CC"),
		ev("2024-03-07T22:00:00.000Z", "CC:CC"),
		ev("2024-03-10T09:00:00.000Z", "CC:CC"),
		ev("2024-03-10T19:30:00.000Z", "CC:CC"),
	}

	a := newTestEngine().Classify(runFor(targetDate), events)

	p := find(t, a.AnomalousDevices, "CC:CC")
	assert.Equal(t, models.RiskLoiteringSuspicious, p.RiskLevel)
	assert.Equal(t, 3, p.BaselineConnections, "counts still come from the aggregate")
	require.True(t, p.HasSessionDetail())
	assert.Equal(t, 10.5, p.Session.DurationHours)
	assert.Equal(t, 9, p.Session.ArrivedHour)
	assert.Equal(t, 19, p.Session.DepartedHour)
	assert.Empty(t, a.BaselineRegularDevices)

	require.Len(t, a.LoiteringDevices, 1)
	l := a.LoiteringDevices[0]
	assert.Equal(t, models.RiskLoiteringSuspicious, l.RiskLevel)
	assert.Equal(t, 0, l.BaselineConnections)
	assert.Equal(t, 1, l.DaysSeenOutOfHours)
	assert.Equal(t, 2, l.TargetDateConnections)
	assert.Equal(t, "2024-03-10T09:00:00.000Z", l.FirstTargetConnection)
	assert.Equal(t, "2024-03-10T19:30:00.000Z", l.LastTargetConnection)
	assert.Equal(t, []string{"HQ"}, l.Networks)
	assert.Equal(t, 10.5, l.Session.DurationHours)

	require.Len(t, a.ExtendedSessions, 1, "loitering sessions are also extended sessions")
	assert.Equal(t, "CC:CC", a.ExtendedSessions[0].MAC)
}

func TestEmptyInputUsesClock(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC) }
	rec := &recorder{}

	a := newTestEngine(WithClock(clock), WithRecorder(rec)).Classify(runFor(time.Time{}), nil)

	assert.Equal(t, "2024-05-01", a.TargetDate)
	assert.True(t, a.Empty())
	for _, b := range a.Buckets() {
		assert.NotNil(t, b.Devices, b.Name)
		assert.Empty(t, b.Devices, b.Name)
	}
	assert.Equal(t, 1, rec.calls)
}

func TestTargetDateFromLatestEvent(t *testing.T) {
	events := []models.ConnectionEvent{
		ev("2024-03-09T20:00:00.000Z", "AA:AA"),
		ev("not-a-time", "AA:AA"),
		ev("2024-03-10T21:00:00.000Z", "BB:BB"),
	}

	a := newTestEngine().Classify(runFor(time.Time{}), events)

	assert.Equal(t, "2024-03-10", a.TargetDate)
	assert.Equal(t, []string{"BB:BB"}, macs(a.TargetDateDevices))
	assert.Equal(t, []string{"AA:AA"}, macs(a.BaselineOnlyDevices))
}

func TestBaselineOnlyDeviceListedTwice(t *testing.T) {
	events := []models.ConnectionEvent{
		ev("2024-03-05T20:00:00.000Z", "DD:DD"),
		ev("2024-03-06T20:00:00.000Z", "DD:DD"),
		ev("2024-03-07T20:00:00.000Z", "DD:DD"),
		ev("2024-03-08T04:00:00.000Z", "EE:EE"),
	}

	a := newTestEngine().Classify(runFor(targetDate), events)

	assert.Equal(t, []string{"DD:DD", "EE:EE"}, macs(a.BaselineOnlyDevices))
	assert.Equal(t, []string{"DD:DD"}, macs(a.BaselineRegularDevices))
	assert.Empty(t, a.TargetDateDevices)

	only := find(t, a.BaselineOnlyDevices, "DD:DD")
	assert.Equal(t, models.RiskBaselineOnly, only.RiskLevel)
	assert.Equal(t, "Always-on device: 3 baseline connections across 3 days, but NO connections on target date. "+
		"Could be normal (stayed connected) or suspicious (device turned off/removed during incident).", only.RiskExplanation)

	regular := a.BaselineRegularDevices[0]
	assert.Equal(t, models.RiskBaselineRegular, regular.RiskLevel)
	assert.Equal(t, only.RiskExplanation, regular.RiskExplanation)

	sparse := find(t, a.BaselineOnlyDevices, "EE:EE")
	assert.Equal(t, "Baseline device: 1 baseline connections on 1 day(s), but absent on target date. "+
		"Monitor for unusual absence pattern.", sparse.RiskExplanation)
}

func TestSingleDayBaselineRules(t *testing.T) {
	events := []models.ConnectionEvent{
		// Same date as the target evening, but early morning: baseline.
		ev("2024-03-10T01:00:00.000Z", "FF:FF"),
		ev("2024-03-10T02:00:00.000Z", "FF:FF"),
		ev("2024-03-10T03:00:00.000Z", "FF:FF"),
		ev("2024-03-10T20:00:00.000Z", "FF:FF"),

		ev("2024-03-10T04:00:00.000Z", "GG:GG"),
		ev("2024-03-10T21:00:00.000Z", "GG:GG"),
	}

	a := newTestEngine().Classify(runFor(targetDate), events)

	ff := find(t, a.BaselineRegularDevices, "FF:FF")
	assert.Equal(t, 1, ff.DaysSeenOutOfHours)
	assert.Equal(t, "Regular out-of-hours device: 3 baseline connections (single day pattern). "+
		"Likely IoT/always-on device.", ff.RiskExplanation)

	gg := find(t, a.AnomalousDevices, "GG:GG")
	assert.Equal(t, models.RiskAnomalousSuspicious, gg.RiskLevel)
	assert.Equal(t, "Suspicious pattern: Only 1 baseline connections on 1 day(s), but 1 connections on target date. "+
		"Could be: employee working unusual hours, device brought in for theft, or coincidental usage.", gg.RiskExplanation)
}

func TestMissingMACAndBusinessHoursIgnored(t *testing.T) {
	events := []models.ConnectionEvent{
		ev("2024-03-10T20:00:00.000Z", ""),
		ev("2024-03-10T12:00:00.000Z", "HH:HH"),
		ev("2024-03-10T13:00:00.000Z", "HH:HH"),
	}

	a := newTestEngine().Classify(runFor(targetDate), events)
	assert.True(t, a.Empty())
}

func TestBucketOrderFollowsFirstAppearance(t *testing.T) {
	events := []models.ConnectionEvent{
		ev("2024-03-10T22:00:00.000Z", "ZZ:ZZ"),
		ev("2024-03-10T19:00:00.000Z", "AA:AA"),
		ev("2024-03-11T02:00:00.000Z", "MM:MM"),
	}

	a := newTestEngine().Classify(runFor(targetDate), events)
	assert.Equal(t, []string{"ZZ:ZZ", "AA:AA", "MM:MM"}, macs(a.TargetDateDevices))
	assert.Equal(t, []string{"ZZ:ZZ", "AA:AA", "MM:MM"}, macs(a.AnomalousDevices))
}

func TestAggregateSplitsNightCycle(t *testing.T) {
	events := []models.ConnectionEvent{
		ev("2024-03-10T17:59:59.000Z", "AA:AA"),
		ev("2024-03-10T18:00:00.000Z", "AA:AA"),
		ev("2024-03-11T05:59:59.000Z", "AA:AA"),
		ev("2024-03-11T06:00:00.000Z", "AA:AA"),
		ev("2024-03-11T18:00:00.000Z", "AA:AA"),
		ev("2024-03-10T05:00:00.000Z", "AA:AA"),
	}

	agg := Aggregate(events, targetDate)
	dev := agg.Get("AA:AA")
	require.NotNil(t, dev)
	assert.Equal(t, 2, dev.TargetCount())
	assert.Equal(t, 2, dev.BaselineCount())
	assert.Equal(t, 2, dev.DaysSeen())
	assert.Nil(t, agg.Get("BB:BB"))
}

func TestRunCarriesIdentity(t *testing.T) {
	r := NewRun(time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC), nil)
	assert.Len(t, r.ID, 36)
	assert.True(t, r.HasTargetDate())
	assert.Equal(t, targetDate, r.TargetDate)
	assert.NotNil(t, r.Logger)

	other := NewRun(time.Time{}, nil)
	assert.NotEqual(t, r.ID, other.ID)
	assert.False(t, other.HasTargetDate())

	a := newTestEngine().Classify(r, nil)
	assert.Equal(t, r.ID, a.RunID)
}

func TestCompletionLogNamesTargetDateOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	events := []models.ConnectionEvent{ev("2024-03-10T22:00:00.000Z", "BB:BB")}

	New(WithLogger(logger)).Classify(NewRun(targetDate, logger), events)
	assert.Equal(t, 1, strings.Count(buf.String(), "target_date=2024-03-10"))

	buf.Reset()
	New(WithLogger(logger)).Classify(NewRun(time.Time{}, logger), events)
	assert.Equal(t, 1, strings.Count(buf.String(), "target_date=2024-03-10"))
}
