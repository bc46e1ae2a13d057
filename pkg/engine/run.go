package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// Run is the context of a single investigation. It is created once per
// investigation, handed to every component that takes part in it, and
// discarded when the analysis has been exported. Nothing about a run is
// kept in package-level state.
type Run struct {
	// ID uniquely identifies the investigation in logs and exports.
	ID string

	// TargetDate is the investigated date. The zero value lets the engine
	// derive it from the latest event.
	TargetDate time.Time

	// StartedAt is when the investigation began.
	StartedAt time.Time

	// Logger is annotated with the run ID.
	Logger *slog.Logger
}

// NewRun creates a run for the given target date (zero for "derive from
// the data"), logging through logger (nil for slog.Default()).
func NewRun(target time.Time, logger *slog.Logger) *Run {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	r := &Run{
		ID:        id,
		StartedAt: time.Now(),
		Logger:    logger.With("run_id", id),
	}
	if !target.IsZero() {
		r.TargetDate = window.DateOf(target)
		r.Logger = r.Logger.With("target_date", window.FormatDate(r.TargetDate))
	}
	return r
}

// HasTargetDate reports whether the target date was supplied explicitly.
func (r *Run) HasTargetDate() bool {
	return r != nil && !r.TargetDate.IsZero()
}

// Log returns the run's logger, falling back to slog.Default().
func (r *Run) Log() *slog.Logger {
	if r == nil || r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
