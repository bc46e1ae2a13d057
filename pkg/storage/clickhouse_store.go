package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// DefaultTable is the archive table name.
const DefaultTable = "wireless_connections"

// ClickHouseConfig holds the archive connection settings.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

// OpenClickHouse opens a database/sql handle on ClickHouse and pings it.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*sql.DB, error) {
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse at %s: %w", cfg.Addr, err)
	}
	return db, nil
}

// ClickHouseStore archives connection events in a ReplacingMergeTree table
// ordered by the deduplication key, so repeated deliveries collapse on merge
// and reads use FINAL.
type ClickHouseStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseStore wraps an open handle. An empty table selects
// DefaultTable.
func NewClickHouseStore(db *sql.DB, table string) *ClickHouseStore {
	if table == "" {
		table = DefaultTable
	}
	return &ClickHouseStore{db: db, table: table}
}

// CreateTableSQL returns the DDL of the archive table.
func (s *ClickHouseStore) CreateTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	occurred_at DateTime64(3, 'UTC'),
	timestamp String,
	event_type LowCardinality(String),
	client_mac String,
	client_description String,
	device_serial String,
	ssid String,
	description String,
	organization String,
	network String
) ENGINE = ReplacingMergeTree
ORDER BY (timestamp, client_mac, event_type)`
}

// InitSchema creates the archive table if it does not exist.
func (s *ClickHouseStore) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.CreateTableSQL()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseStore) insertSQL() string {
	return "INSERT INTO " + s.table +
		" (occurred_at, timestamp, event_type, client_mac, client_description, device_serial, ssid, description, organization, network)"
}

func (s *ClickHouseStore) selectSQL() string {
	return "SELECT timestamp, event_type, client_mac, client_description, device_serial, ssid, description, organization, network FROM " +
		s.table + " FINAL WHERE occurred_at >= ? AND occurred_at < ? ORDER BY occurred_at"
}

// Save writes the batch in one transaction. ClickHouse deduplicates on
// merge, so every event is reported as new.
func (s *ClickHouseStore) Save(ctx context.Context, events []models.ConnectionEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	times := make([]time.Time, len(events))
	for i, ev := range events {
		at, err := window.ParseTimestamp(ev.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidEvent, ev.Timestamp)
		}
		times[i] = at.UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, s.insertSQL())
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			times[i],
			ev.Timestamp,
			string(ev.EventType),
			ev.ClientMac,
			ev.ClientDescription,
			ev.DeviceSerial,
			ev.SSID,
			ev.Description,
			ev.Organization,
			ev.Network,
		); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("append event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}
	return len(events), nil
}

// Range reads the events that occurred in [start, end).
func (s *ClickHouseStore) Range(ctx context.Context, start, end time.Time) ([]models.ConnectionEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.selectSQL(), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	out := make([]models.ConnectionEvent, 0)
	for rows.Next() {
		var ev models.ConnectionEvent
		var eventType string
		if err := rows.Scan(
			&ev.Timestamp,
			&eventType,
			&ev.ClientMac,
			&ev.ClientDescription,
			&ev.DeviceSerial,
			&ev.SSID,
			&ev.Description,
			&ev.Organization,
			&ev.Network,
		); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		ev.EventType = models.EventType(eventType)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.table, err)
	}
	return out, nil
}

var _ ConnectionStore = (*ClickHouseStore)(nil)
