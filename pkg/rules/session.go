package rules

import (
	"sort"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// DaySession is every connection of one device on a single calendar date,
// sorted by instant.
type DaySession struct {
	MAC         string
	Description string
	Connections []models.ConnectionEvent
	First       time.Time
	Last        time.Time
}

// Duration is the span between the first and last connection.
func (s DaySession) Duration() time.Duration {
	return s.Last.Sub(s.First)
}

// FirstTimestamp returns the first connection's timestamp as delivered.
func (s DaySession) FirstTimestamp() string {
	return s.Connections[0].Timestamp
}

// LastTimestamp returns the last connection's timestamp as delivered.
func (s DaySession) LastTimestamp() string {
	return s.Connections[len(s.Connections)-1].Timestamp
}

// Networks returns the sorted distinct networks of the session.
func (s DaySession) Networks() []string {
	return distinct(s.Connections, func(e models.ConnectionEvent) string { return e.Network })
}

// SSIDs returns the sorted distinct SSIDs of the session.
func (s DaySession) SSIDs() []string {
	return distinct(s.Connections, func(e models.ConnectionEvent) string { return e.SSID })
}

type timedEvent struct {
	at time.Time
	ev models.ConnectionEvent
}

// DaySessions groups the connections written on date by device. Devices
// with fewer than two parseable connections that day are skipped, since a
// single event says nothing about arrival and departure. Sessions are
// returned in order of each device's first appearance in conns.
func DaySessions(conns []models.ConnectionEvent, date time.Time) []DaySession {
	target := window.FormatDate(date)

	order := make([]string, 0)
	byMAC := make(map[string][]timedEvent)
	for _, c := range conns {
		if !c.HasClient() {
			continue
		}
		at, err := window.ParseTimestamp(c.Timestamp)
		if err != nil || window.FormatDate(at) != target {
			continue
		}
		if _, ok := byMAC[c.ClientMac]; !ok {
			order = append(order, c.ClientMac)
		}
		byMAC[c.ClientMac] = append(byMAC[c.ClientMac], timedEvent{at: at, ev: c})
	}

	sessions := make([]DaySession, 0, len(order))
	for _, mac := range order {
		evs := byMAC[mac]
		if len(evs) < 2 {
			continue
		}
		sort.SliceStable(evs, func(i, j int) bool { return evs[i].at.Before(evs[j].at) })

		s := DaySession{
			MAC:         mac,
			Description: evs[0].ev.ClientDescription,
			Connections: make([]models.ConnectionEvent, len(evs)),
			First:       evs[0].at,
			Last:        evs[len(evs)-1].at,
		}
		for i, te := range evs {
			s.Connections[i] = te.ev
		}
		sessions = append(sessions, s)
	}
	return sessions
}

func distinct(events []models.ConnectionEvent, field func(models.ConnectionEvent) string) []string {
	set := make(map[string]struct{})
	for _, e := range events {
		set[field(e)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
