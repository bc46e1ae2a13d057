// Package normalize turns raw provider events into the canonical,
// deduplicated connection stream the classifier works on.
//
// The same event is routinely delivered more than once: paginated fetches
// overlap at page boundaries, and baseline and target windows can share an
// edge. A Normalizer collapses those repeats on the (timestamp, mac, type)
// key and keeps the first occurrence, so feeding it the same batch twice
// changes nothing.
package normalize

import (
	"github.com/gokaycavdar/go-nightguard/pkg/models"
)

// Normalizer accumulates canonical connection events across batches.
// It is not safe for concurrent use; one Normalizer belongs to one run.
type Normalizer struct {
	organization string
	network      string

	seen       map[models.EventKey]struct{}
	events     []models.ConnectionEvent
	stream     bool
	duplicates int
	dropped    int
}

// New creates a Normalizer that stamps every event with the given
// organization and network display names.
func New(organization, network string) *Normalizer {
	return &Normalizer{
		organization: organization,
		network:      network,
		seen:         make(map[models.EventKey]struct{}),
		events:       make([]models.ConnectionEvent, 0),
	}
}

// NewStream creates a Normalizer that only remembers keys. Accepted events
// are handed back by Next and never retained, so Events and Len stay empty.
func NewStream(organization, network string) *Normalizer {
	n := New(organization, network)
	n.stream = true
	return n
}

// Next normalizes one batch and returns the events not seen in any earlier
// batch, in arrival order.
func (n *Normalizer) Next(raws ...models.RawEvent) []models.ConnectionEvent {
	fresh := make([]models.ConnectionEvent, 0, len(raws))
	for _, raw := range raws {
		if !models.EventType(raw.Type).Valid() {
			n.dropped++
			continue
		}
		ev := n.convert(raw)
		if n.admit(ev) {
			fresh = append(fresh, ev)
		}
	}
	return fresh
}

// Add normalizes raw events in arrival order and returns how many were
// accepted as new. Unsupported event types are dropped; repeats of an
// already seen key are discarded silently.
func (n *Normalizer) Add(raws ...models.RawEvent) int {
	accepted := 0
	for _, raw := range raws {
		if !models.EventType(raw.Type).Valid() {
			n.dropped++
			continue
		}
		if n.admit(n.convert(raw)) {
			accepted++
		}
	}
	return accepted
}

// AddConnections admits already canonical events (CSV replay, archive reads)
// under the same deduplication key. Organization and network are kept as
// recorded.
func (n *Normalizer) AddConnections(events ...models.ConnectionEvent) int {
	accepted := 0
	for _, ev := range events {
		if !ev.EventType.Valid() {
			n.dropped++
			continue
		}
		if n.admit(ev) {
			accepted++
		}
	}
	return accepted
}

func (n *Normalizer) admit(ev models.ConnectionEvent) bool {
	key := ev.Key()
	if _, dup := n.seen[key]; dup {
		n.duplicates++
		return false
	}
	n.seen[key] = struct{}{}
	if !n.stream {
		n.events = append(n.events, ev)
	}
	return true
}

// convert stamps the normalizer's names, falling back to the names a
// replayed record already carries.
func (n *Normalizer) convert(raw models.RawEvent) models.ConnectionEvent {
	org, network := n.organization, n.network
	if org == "" {
		org = raw.Organization
	}
	if network == "" {
		network = raw.Network
	}
	return models.ConnectionEvent{
		Organization:      org,
		Network:           network,
		Timestamp:         raw.OccurredAt,
		EventType:         models.EventType(raw.Type),
		ClientMac:         raw.ClientMac,
		ClientDescription: raw.ClientDescription,
		DeviceSerial:      raw.DeviceSerial,
		SSID:              raw.SSIDValue(),
		Description:       raw.Description,
	}
}

// Events returns the canonical stream in first-seen order.
func (n *Normalizer) Events() []models.ConnectionEvent {
	out := make([]models.ConnectionEvent, len(n.events))
	copy(out, n.events)
	return out
}

// Len returns the number of unique events collected.
func (n *Normalizer) Len() int { return len(n.events) }

// Duplicates returns how many repeated deliveries were collapsed.
func (n *Normalizer) Duplicates() int { return n.duplicates }

// Dropped returns how many events had an unsupported type.
func (n *Normalizer) Dropped() int { return n.dropped }

// Normalize is a one-shot helper over a single batch.
func Normalize(organization, network string, raws []models.RawEvent) []models.ConnectionEvent {
	n := New(organization, network)
	n.Add(raws...)
	return n.Events()
}

// Deduplicate removes repeated (timestamp, mac, type) records from an
// already canonical list, keeping the first occurrence and the input order.
func Deduplicate(events []models.ConnectionEvent) []models.ConnectionEvent {
	seen := make(map[models.EventKey]struct{}, len(events))
	out := make([]models.ConnectionEvent, 0, len(events))
	for _, ev := range events {
		key := ev.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out
}
