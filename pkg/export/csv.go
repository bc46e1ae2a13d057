// Package export flattens connection events and classification buckets
// into CSV files and reads collected CSV logs back.
//
// List-valued profile fields (networks, ssids) are joined with ", " here and
// nowhere else.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
)

// File names written into an analysis directory.
const (
	ConnectionsFile      = "all_connections.csv"
	ExtendedSessionsFile = "extended_session_devices.csv"
	CollectionLogFile    = "last_30_days_log.csv"
	listSeparator        = ", "
)

// ConnectionColumns is the canonical connection schema.
var ConnectionColumns = []string{
	"organization", "network", "timestamp", "event_type",
	"client_mac", "client_description", "device_serial",
	"ssid", "description",
}

// DeviceColumns is the canonical device profile schema.
var DeviceColumns = []string{
	"mac", "description", "target_date_connections", "baseline_connections",
	"days_seen_out_of_hours", "networks", "ssids", "first_target_connection",
	"last_target_connection", "risk_level", "risk_explanation", "duration_hours",
	"arrived_hour", "departed_hour",
}

// ExtendedSessionColumns is the extended session report schema.
var ExtendedSessionColumns = []string{
	"mac", "description", "first_connection", "last_connection",
	"duration_hours", "total_connections", "connected_hour", "last_seen_hour",
	"business_hours_start", "after_hours_activity", "risk_explanation",
}

// ErrMissingColumn is returned when a connection CSV lacks a required column.
var ErrMissingColumn = errors.New("export: missing column")

// ConnectionRow flattens an event in ConnectionColumns order.
func ConnectionRow(ev models.ConnectionEvent) []string {
	return []string{
		ev.Organization,
		ev.Network,
		ev.Timestamp,
		string(ev.EventType),
		ev.ClientMac,
		ev.ClientDescription,
		ev.DeviceSerial,
		ev.SSID,
		ev.Description,
	}
}

// DeviceRow flattens a profile in DeviceColumns order. The session columns
// are empty unless the profile is a loitering one.
func DeviceRow(p models.DeviceRiskProfile) []string {
	duration, arrived, departed := "", "", ""
	if p.HasSessionDetail() {
		duration = strconv.FormatFloat(p.Session.DurationHours, 'f', 1, 64)
		arrived = strconv.Itoa(p.Session.ArrivedHour)
		departed = strconv.Itoa(p.Session.DepartedHour)
	}
	return []string{
		p.MAC,
		p.Description,
		strconv.Itoa(p.TargetDateConnections),
		strconv.Itoa(p.BaselineConnections),
		strconv.Itoa(p.DaysSeenOutOfHours),
		strings.Join(p.Networks, listSeparator),
		strings.Join(p.SSIDs, listSeparator),
		p.FirstTargetConnection,
		p.LastTargetConnection,
		string(p.RiskLevel),
		p.RiskExplanation,
		duration,
		arrived,
		departed,
	}
}

// ExtendedSessionRow flattens an extended session in ExtendedSessionColumns
// order.
func ExtendedSessionRow(s models.ExtendedSession) []string {
	return []string{
		s.MAC,
		s.Description,
		s.FirstConnection,
		s.LastConnection,
		strconv.FormatFloat(s.DurationHours, 'f', 1, 64),
		strconv.Itoa(s.TotalConnections),
		strconv.Itoa(s.ConnectedHour),
		strconv.Itoa(s.LastSeenHour),
		"True",
		"True",
		s.RiskExplanation,
	}
}

// ConnectionWriter streams connection rows to a CSV, writing the header
// once. Used by the collector to write a day at a time.
type ConnectionWriter struct {
	w      *csv.Writer
	header bool
	rows   int
}

// NewConnectionWriter wraps w.
func NewConnectionWriter(w io.Writer) *ConnectionWriter {
	return &ConnectionWriter{w: csv.NewWriter(w)}
}

// Write appends events and flushes.
func (cw *ConnectionWriter) Write(events []models.ConnectionEvent) error {
	if !cw.header {
		if err := cw.w.Write(ConnectionColumns); err != nil {
			return err
		}
		cw.header = true
	}
	for _, ev := range events {
		if err := cw.w.Write(ConnectionRow(ev)); err != nil {
			return err
		}
		cw.rows++
	}
	cw.w.Flush()
	return cw.w.Error()
}

// Rows returns how many rows were written.
func (cw *ConnectionWriter) Rows() int { return cw.rows }

// WriteConnections writes a header and one row per event.
func WriteConnections(w io.Writer, events []models.ConnectionEvent) error {
	return NewConnectionWriter(w).Write(events)
}

// WriteDevices writes a header and one row per profile.
func WriteDevices(w io.Writer, devices []models.DeviceRiskProfile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DeviceColumns); err != nil {
		return err
	}
	for _, p := range devices {
		if err := cw.Write(DeviceRow(p)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteExtendedSessions writes a header and one row per session.
func WriteExtendedSessions(w io.Writer, sessions []models.ExtendedSession) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExtendedSessionColumns); err != nil {
		return err
	}
	for _, s := range sessions {
		if err := cw.Write(ExtendedSessionRow(s)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAnalysis writes the connection list, every non-empty bucket and the
// extended session report into dir, and returns the written file names.
// Empty lists produce no file.
func WriteAnalysis(dir string, conns []models.ConnectionEvent, a *models.Analysis) ([]string, error) {
	written := make([]string, 0)

	if len(conns) > 0 {
		if err := writeFile(filepath.Join(dir, ConnectionsFile), func(w io.Writer) error {
			return WriteConnections(w, conns)
		}); err != nil {
			return written, err
		}
		written = append(written, ConnectionsFile)
	}

	for _, b := range a.Buckets() {
		if len(b.Devices) == 0 {
			continue
		}
		name := b.Name + ".csv"
		devices := b.Devices
		if err := writeFile(filepath.Join(dir, name), func(w io.Writer) error {
			return WriteDevices(w, devices)
		}); err != nil {
			return written, err
		}
		written = append(written, name)
	}

	if len(a.ExtendedSessions) > 0 {
		if err := writeFile(filepath.Join(dir, ExtendedSessionsFile), func(w io.Writer) error {
			return WriteExtendedSessions(w, a.ExtendedSessions)
		}); err != nil {
			return written, err
		}
		written = append(written, ExtendedSessionsFile)
	}
	return written, nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadConnections parses a connection CSV by header name. Column order is
// free; rows without a timestamp are skipped.
func ReadConnections(r io.Reader) ([]models.ConnectionEvent, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []models.ConnectionEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{"timestamp", "event_type", "client_mac"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	out := make([]models.ConnectionEvent, 0)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		ev := models.ConnectionEvent{
			Organization:      get(rec, "organization"),
			Network:           get(rec, "network"),
			Timestamp:         get(rec, "timestamp"),
			EventType:         models.EventType(get(rec, "event_type")),
			ClientMac:         get(rec, "client_mac"),
			ClientDescription: get(rec, "client_description"),
			DeviceSerial:      get(rec, "device_serial"),
			SSID:              get(rec, "ssid"),
			Description:       get(rec, "description"),
		}
		if ev.Timestamp == "" {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// ReadConnectionsFile opens and parses a connection CSV.
func ReadConnectionsFile(path string) ([]models.ConnectionEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadConnections(f)
}
