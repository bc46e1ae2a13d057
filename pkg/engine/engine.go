package engine

import (
	"log/slog"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/rules"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// Recorder receives the outcome of every classification run.
// pkg/metrics provides the Prometheus implementation.
type Recorder interface {
	ObserveAnalysis(a *models.Analysis, elapsed time.Duration)
}

// Engine classifies the out-of-hours devices of one night against the
// preceding baseline.
//
// Architecture Principles:
//   - Engine is synchronous and side-effect free: it never fetches or stores
//   - Explainable: every profile carries a human-readable risk explanation
//   - Deterministic: bucket order follows each device's first out-of-hours
//     appearance in the input
//
// The loitering rule is a single-day detector that overrides every
// baseline-derived label. The extended session rule feeds a separate report
// and never changes a label.
//
// Usage:
//
//	eng := engine.New(engine.WithLogger(logger))
//	run := engine.NewRun(targetDate, logger)
//	analysis := eng.Classify(run, events)
type Engine struct {
	clock     func() time.Time
	logger    *slog.Logger
	recorder  Recorder
	loitering rules.SessionRule
	extended  rules.SessionRule
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used when neither the run nor the events name
// a target date.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the logger used for runs that carry none.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRecorder sets the recorder notified after every run.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithLoiteringRule replaces the default loitering detector.
func WithLoiteringRule(r rules.SessionRule) Option {
	return func(e *Engine) { e.loitering = r }
}

// WithExtendedSessionRule replaces the default extended session detector.
func WithExtendedSessionRule(r rules.SessionRule) Option {
	return func(e *Engine) { e.extended = r }
}

// New creates a classification engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:     time.Now,
		logger:    slog.Default(),
		loitering: rules.NewLoiteringRule(rules.DefaultLoiteringDuration),
		extended:  rules.NewExtendedSessionRule(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify analyzes the combined baseline and target events of a run.
//
// The input must already be normalized (accepted types, deduplicated).
// Events without a MAC or with an unparsable timestamp are ignored where a
// device or a time is required. An empty input yields five empty buckets.
//
// The target date is taken from the run; when the run has none it is the
// date of the latest parseable event, and failing that the engine clock's
// current date.
func (e *Engine) Classify(run *Run, events []models.ConnectionEvent) *models.Analysis {
	started := e.clock()
	logger := e.logger
	if run != nil && run.Logger != nil {
		logger = run.Log()
	}

	target := e.targetDate(run, events)
	runID := ""
	if run != nil {
		runID = run.ID
	}
	analysis := models.NewAnalysis(runID, window.FormatDate(target))

	agg := Aggregate(events, target)
	sessions := rules.DaySessions(events, target)

	findings := make(map[string]rules.Finding)
	for _, s := range sessions {
		f, ok := e.loitering.Match(s)
		if !ok {
			continue
		}
		findings[s.MAC] = f
		analysis.LoiteringDevices = append(analysis.LoiteringDevices, loiteringProfile(f))
	}

	for _, dev := range agg.Devices {
		profile := baseProfile(dev)

		switch {
		case dev.TargetCount() > 0:
			bucket := classifyTarget(&profile, dev, findings)
			analysis.TargetDateDevices = append(analysis.TargetDateDevices, profile)
			switch bucket {
			case models.BucketBaselineRegular:
				analysis.BaselineRegularDevices = append(analysis.BaselineRegularDevices, profile)
			default:
				analysis.AnomalousDevices = append(analysis.AnomalousDevices, profile)
			}

		case dev.BaselineCount() > 0:
			classifyBaselineOnly(&profile, dev)
			analysis.BaselineOnlyDevices = append(analysis.BaselineOnlyDevices, profile)
			if isRegular(dev) {
				regular := profile
				regular.RiskLevel = models.RiskBaselineRegular
				analysis.BaselineRegularDevices = append(analysis.BaselineRegularDevices, regular)
			}
		}
	}

	for _, s := range sessions {
		f, ok := e.extended.Match(s)
		if !ok {
			continue
		}
		analysis.ExtendedSessions = append(analysis.ExtendedSessions, extendedSession(f))
	}

	elapsed := e.clock().Sub(started)
	if !run.HasTargetDate() {
		// A run with an explicit date already logs it.
		logger = logger.With("target_date", analysis.TargetDate)
	}
	logger.Info("classification complete",
		"events", len(events),
		"devices", len(agg.Devices),
		"target_date_devices", len(analysis.TargetDateDevices),
		"baseline_regular", len(analysis.BaselineRegularDevices),
		"anomalous", len(analysis.AnomalousDevices),
		"baseline_only", len(analysis.BaselineOnlyDevices),
		"loitering", len(analysis.LoiteringDevices),
		"extended_sessions", len(analysis.ExtendedSessions),
	)

	if e.recorder != nil {
		e.recorder.ObserveAnalysis(analysis, elapsed)
	}
	return analysis
}

// targetDate resolves the investigated date of a run.
func (e *Engine) targetDate(run *Run, events []models.ConnectionEvent) time.Time {
	if run.HasTargetDate() {
		return window.DateOf(run.TargetDate)
	}

	if d, ok := LatestDate(events); ok {
		return d
	}
	return window.DateOf(e.clock())
}

// LatestDate returns the date of the latest parseable timestamp, if any.
func LatestDate(events []models.ConnectionEvent) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, ev := range events {
		at, err := window.ParseTimestamp(ev.Timestamp)
		if err != nil {
			continue
		}
		if !found || at.After(latest) {
			latest = at
			found = true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return window.DateOf(latest), true
}

func baseProfile(dev *DeviceAggregate) models.DeviceRiskProfile {
	first, last := dev.TargetSpan()
	return models.DeviceRiskProfile{
		MAC:                   dev.MAC,
		Description:           dev.Description,
		TargetDateConnections: dev.TargetCount(),
		BaselineConnections:   dev.BaselineCount(),
		DaysSeenOutOfHours:    dev.DaysSeen(),
		Networks:              dev.NetworkList(),
		SSIDs:                 dev.SSIDList(),
		FirstTargetConnection: first,
		LastTargetConnection:  last,
	}
}

// loiteringProfile builds the loitering bucket entry straight from the day
// session. The baseline is not consulted, so the counts are fixed at zero
// baseline connections seen on one day.
func loiteringProfile(f rules.Finding) models.DeviceRiskProfile {
	return models.DeviceRiskProfile{
		MAC:                   f.Session.MAC,
		Description:           f.Session.Description,
		TargetDateConnections: len(f.Session.Connections),
		BaselineConnections:   0,
		DaysSeenOutOfHours:    1,
		Networks:              f.Session.Networks(),
		SSIDs:                 f.Session.SSIDs(),
		FirstTargetConnection: f.Session.FirstTimestamp(),
		LastTargetConnection:  f.Session.LastTimestamp(),
		RiskLevel:             models.RiskLoiteringSuspicious,
		RiskExplanation:       f.Explanation,
		Session:               sessionDetail(f),
	}
}

func sessionDetail(f rules.Finding) *models.SessionDetail {
	return &models.SessionDetail{
		DurationHours: f.DurationHours,
		ArrivedHour:   f.ArrivedHour,
		DepartedHour:  f.DepartedHour,
	}
}

func extendedSession(f rules.Finding) models.ExtendedSession {
	return models.ExtendedSession{
		MAC:              f.Session.MAC,
		Description:      f.Session.Description,
		FirstConnection:  f.Session.FirstTimestamp(),
		LastConnection:   f.Session.LastTimestamp(),
		DurationHours:    f.DurationHours,
		TotalConnections: len(f.Session.Connections),
		ConnectedHour:    f.ArrivedHour,
		LastSeenHour:     f.DepartedHour,
		RiskExplanation:  f.Explanation,
	}
}
