package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
)

// ErrInvalidEvent is returned when an event cannot be archived because its
// timestamp does not parse. Nothing from the batch is stored.
var ErrInvalidEvent = errors.New("storage: event has no parseable timestamp")

// ConnectionStore defines the interface for archiving canonical connection
// events and reading them back by time range.
// Implementations can use any backend: in-memory, ClickHouse, etc.
//
// Archives are keyed by the (timestamp, mac, type) deduplication key:
// saving the same event twice keeps a single copy.
type ConnectionStore interface {
	// Save archives a batch and returns how many events were new.
	Save(ctx context.Context, events []models.ConnectionEvent) (int, error)

	// Range returns the events that occurred in [start, end), ordered by
	// occurrence time.
	Range(ctx context.Context, start, end time.Time) ([]models.ConnectionEvent, error)
}
