package storage

import (
	"context"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
)

// Source replays archived connections as raw events, so an investigation
// can run against the archive instead of the live dashboard.
type Source struct {
	store ConnectionStore
}

// NewSource adapts a store to an event source.
func NewSource(store ConnectionStore) *Source {
	return &Source{store: store}
}

// Events returns the archived events in [start, end).
func (s *Source) Events(ctx context.Context, start, end time.Time) ([]models.RawEvent, error) {
	conns, err := s.store.Range(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]models.RawEvent, len(conns))
	for i, c := range conns {
		out[i] = c.Raw()
	}
	return out, nil
}
