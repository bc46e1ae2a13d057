package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/baseline"
	"github.com/gokaycavdar/go-nightguard/pkg/export"
	"github.com/gokaycavdar/go-nightguard/pkg/normalize"
	"github.com/gokaycavdar/go-nightguard/pkg/storage"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// Collection streams whole days of connections from a source into a CSV
// writer, one day at a time, optionally archiving them as well.
type Collection struct {
	Source  baseline.EventSource
	Writer  *export.ConnectionWriter
	Archive storage.ConnectionStore
	Logger  *slog.Logger

	Organization string
	Network      string
}

// CollectStats summarizes a collection.
type CollectStats struct {
	Days        int
	FailedDays  int
	Connections int
	Archived    int
}

// Collect fetches the days full days preceding the date of now, oldest
// first. A day that cannot be fetched is logged and skipped; an error is
// returned only when every day failed or the writer fails.
func (c *Collection) Collect(ctx context.Context, now time.Time, days int) (CollectStats, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stats CollectStats
	n := normalize.NewStream(c.Organization, c.Network)
	today := window.DateOf(now)
	var lastErr error

	for i := days; i >= 1; i-- {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		day := window.Day(today.AddDate(0, 0, -i))
		stats.Days++

		raws, err := c.Source.Events(ctx, day.Start, day.End)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.FailedDays++
			lastErr = err
			logger.Warn("collection day unavailable", "date", window.FormatDate(day.Start), "error", err)
			continue
		}

		fresh := n.Next(raws...)

		if err := c.Writer.Write(fresh); err != nil {
			return stats, fmt.Errorf("write %s: %w", window.FormatDate(day.Start), err)
		}
		stats.Connections += len(fresh)

		if c.Archive != nil && len(fresh) > 0 {
			saved, err := c.Archive.Save(ctx, fresh)
			if err != nil {
				logger.Warn("archive write failed", "date", window.FormatDate(day.Start), "error", err)
			} else {
				stats.Archived += saved
			}
		}

		logger.Info("collection day written",
			"date", window.FormatDate(day.Start),
			"events", len(raws),
			"connections", len(fresh),
		)
	}

	if stats.Days > 0 && stats.FailedDays == stats.Days {
		return stats, fmt.Errorf("%w: all %d days failed: %w", baseline.ErrSourceUnavailable, stats.Days, lastErr)
	}
	return stats, nil
}
