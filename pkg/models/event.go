package models

// EventType is the provider's wireless event type.
type EventType string

const (
	EventAssociation    EventType = "association"
	EventWPAAuth        EventType = "wpa_auth"
	EventDisassociation EventType = "disassociation"
)

// Valid reports whether the type is one the classifier accepts.
// Every other provider event type is dropped before normalization.
func (t EventType) Valid() bool {
	switch t {
	case EventAssociation, EventWPAAuth, EventDisassociation:
		return true
	}
	return false
}

// RawEvent is a wireless event as delivered by the event collector.
type RawEvent struct {
	OccurredAt        string `json:"occurredAt"`
	Type              string `json:"type"`
	ClientMac         string `json:"clientMac"`
	ClientDescription string `json:"clientDescription"`
	DeviceSerial      string `json:"deviceSerial"`
	SSID              string `json:"ssid"`
	SSIDName          string `json:"ssidName,omitempty"`
	Description       string `json:"description"`
	NetworkID         string `json:"networkId,omitempty"`

	// Organization and Network carry display names on replayed archive
	// records. The dashboard never sets them.
	Organization string `json:"organization,omitempty"`
	Network      string `json:"network,omitempty"`
}

// SSIDValue returns ssid, falling back to ssidName.
func (r RawEvent) SSIDValue() string {
	if r.SSID != "" {
		return r.SSID
	}
	return r.SSIDName
}

// ConnectionEvent is one canonical connection record.
//
// Timestamp is kept exactly as delivered (ISO-8601, normally UTC with
// millisecond precision and a Z suffix) so exports round-trip unchanged.
type ConnectionEvent struct {
	Organization      string    `json:"organization"`
	Network           string    `json:"network"`
	Timestamp         string    `json:"timestamp"`
	EventType         EventType `json:"event_type"`
	ClientMac         string    `json:"client_mac"`
	ClientDescription string    `json:"client_description"`
	DeviceSerial      string    `json:"device_serial"`
	SSID              string    `json:"ssid"`
	Description       string    `json:"description"`
}

// EventKey identifies duplicate deliveries of the same event.
type EventKey struct {
	Timestamp string
	ClientMac string
	EventType EventType
}

// Key returns the (timestamp, mac, type) deduplication key.
func (e ConnectionEvent) Key() EventKey {
	return EventKey{Timestamp: e.Timestamp, ClientMac: e.ClientMac, EventType: e.EventType}
}

// HasClient reports whether the event can be attributed to a device.
func (e ConnectionEvent) HasClient() bool {
	return e.ClientMac != ""
}

// Raw converts the record back to the collector shape, for replaying
// archived connections through an event source.
func (e ConnectionEvent) Raw() RawEvent {
	return RawEvent{
		OccurredAt:        e.Timestamp,
		Type:              string(e.EventType),
		ClientMac:         e.ClientMac,
		ClientDescription: e.ClientDescription,
		DeviceSerial:      e.DeviceSerial,
		SSID:              e.SSID,
		Description:       e.Description,
		Organization:      e.Organization,
		Network:           e.Network,
	}
}
