package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/engine"
	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// DefaultNights is the number of night cycles in a baseline.
const DefaultNights = 7

// ErrSourceUnavailable is returned when no baseline window could be
// fetched at all.
var ErrSourceUnavailable = errors.New("baseline: event source unavailable")

// EventSource delivers the raw wireless events that occurred in
// [start, end). Implementations handle pagination and return a finite
// batch, possibly empty.
type EventSource interface {
	Events(ctx context.Context, start, end time.Time) ([]models.RawEvent, error)
}

// Half names one half of a night cycle.
type Half string

const (
	Evening Half = "evening"
	Morning Half = "morning"
)

// Failure records a baseline window that could not be fetched.
type Failure struct {
	Anchor time.Time
	Half   Half
	Window window.Window
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", window.FormatDate(f.Anchor), f.Half, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Result is an assembled baseline.
type Result struct {
	// Events holds the evening and morning events of every night, oldest
	// night first.
	Events   []models.RawEvent
	Windows  int
	Failures []Failure
}

// Partial reports whether at least one window failed.
func (r *Result) Partial() bool {
	return len(r.Failures) > 0
}

// FailureCounter is notified for every failed window.
type FailureCounter interface {
	IncBaselineFailure(half string)
}

// Assembler builds the baseline pool of an investigation: the complete
// night cycles anchored at the Nights dates preceding the target date.
type Assembler struct {
	Nights   int
	Failures FailureCounter
}

// NewAssembler creates an assembler for DefaultNights nights.
func NewAssembler() *Assembler {
	return &Assembler{Nights: DefaultNights}
}

// Assemble fetches, for i = Nights..1, the evening and then the morning
// window of the night anchored at date-i. A night's morning half always
// belongs to the evening before it.
//
// A failing window is logged, recorded in the result and skipped, so a
// partial baseline is still classified. Only when every window failed is
// ErrSourceUnavailable returned. Context cancellation aborts the run.
func (a *Assembler) Assemble(ctx context.Context, run *engine.Run, src EventSource, date time.Time) (*Result, error) {
	nights := a.Nights
	if nights <= 0 {
		nights = DefaultNights
	}
	logger := run.Log()
	day := window.DateOf(date)

	res := &Result{Events: make([]models.RawEvent, 0)}
	for i := nights; i >= 1; i-- {
		cycle := window.Cycle(day.AddDate(0, 0, -i))
		halves := []struct {
			half Half
			w    window.Window
		}{
			{Evening, cycle.Evening},
			{Morning, cycle.Morning},
		}

		for _, h := range halves {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res.Windows++

			events, err := src.Events(ctx, h.w.Start, h.w.End)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				f := Failure{Anchor: cycle.Anchor, Half: h.half, Window: h.w, Err: err}
				res.Failures = append(res.Failures, f)
				if a.Failures != nil {
					a.Failures.IncBaselineFailure(string(h.half))
				}
				logger.Warn("baseline window unavailable",
					"night", window.FormatDate(cycle.Anchor),
					"half", h.half,
					"error", err,
				)
				continue
			}

			logger.Debug("baseline window fetched",
				"night", window.FormatDate(cycle.Anchor),
				"half", h.half,
				"events", len(events),
			)
			res.Events = append(res.Events, events...)
		}
	}

	if len(res.Failures) == res.Windows {
		return res, fmt.Errorf("%w: all %d windows failed: %w", ErrSourceUnavailable, res.Windows, res.Failures[0].Err)
	}

	logger.Info("baseline assembled",
		"nights", nights,
		"events", len(res.Events),
		"failed_windows", len(res.Failures),
	)
	return res, nil
}

// Target fetches the business day of date followed by its investigation
// window [date 18:00, date+1 06:00). The business day is needed by the
// single-day session detectors. Errors are returned, not swallowed.
func (a *Assembler) Target(ctx context.Context, run *engine.Run, src EventSource, date time.Time) ([]models.RawEvent, error) {
	cycle := window.Cycle(date)
	business := window.BusinessHours(date)
	span := cycle.Span()

	day, err := src.Events(ctx, business.Start, business.End)
	if err != nil {
		return nil, fmt.Errorf("fetch business hours of %s: %w", window.FormatDate(date), err)
	}
	night, err := src.Events(ctx, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("fetch night of %s: %w", window.FormatDate(date), err)
	}

	run.Log().Info("target night fetched",
		"business_events", len(day),
		"night_events", len(night),
	)
	return append(day, night...), nil
}
