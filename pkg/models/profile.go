package models

// RiskLevel is the classification assigned to a device.
type RiskLevel string

const (
	// RiskLoiteringSuspicious: arrived during business hours and stayed
	// well past 18:00 on the target date. Overrides every other label.
	RiskLoiteringSuspicious RiskLevel = "LOITERING_SUSPICIOUS"

	// RiskAnomalousSuspicious: out-of-hours presence on the target night
	// that the baseline does not explain.
	RiskAnomalousSuspicious RiskLevel = "ANOMALOUS_SUSPICIOUS"

	// RiskBaselineRegular: a device routinely present out of hours.
	RiskBaselineRegular RiskLevel = "BASELINE_REGULAR"

	// RiskBaselineOnly: seen in the baseline but absent on the target night.
	RiskBaselineOnly RiskLevel = "BASELINE_ONLY"
)

// SessionDetail carries the single-day session figures of a loitering device.
type SessionDetail struct {
	DurationHours float64 `json:"duration_hours"`
	ArrivedHour   int     `json:"arrived_hour"`
	DepartedHour  int     `json:"departed_hour"`
}

// DeviceRiskProfile is the classification output for one device.
//
// Session is only meaningful when RiskLevel is RiskLoiteringSuspicious;
// use HasSessionDetail rather than testing the pointer.
type DeviceRiskProfile struct {
	MAC                   string         `json:"mac"`
	Description           string         `json:"description"`
	TargetDateConnections int            `json:"target_date_connections"`
	BaselineConnections   int            `json:"baseline_connections"`
	DaysSeenOutOfHours    int            `json:"days_seen_out_of_hours"`
	Networks              []string       `json:"networks"`
	SSIDs                 []string       `json:"ssids"`
	FirstTargetConnection string         `json:"first_target_connection,omitempty"`
	LastTargetConnection  string         `json:"last_target_connection,omitempty"`
	RiskLevel             RiskLevel      `json:"risk_level"`
	RiskExplanation       string         `json:"risk_explanation"`
	Session               *SessionDetail `json:"session,omitempty"`
}

// HasSessionDetail reports whether the loitering fields apply to this profile.
func (p DeviceRiskProfile) HasSessionDetail() bool {
	return p.RiskLevel == RiskLoiteringSuspicious && p.Session != nil
}

// ExtendedSession is a device that connected during business hours and was
// still active after 18:00 on the target date. It is reported separately
// and never changes a device's risk level.
type ExtendedSession struct {
	MAC              string  `json:"mac"`
	Description      string  `json:"description"`
	FirstConnection  string  `json:"first_connection"`
	LastConnection   string  `json:"last_connection"`
	DurationHours    float64 `json:"duration_hours"`
	TotalConnections int     `json:"total_connections"`
	ConnectedHour    int     `json:"connected_hour"`
	LastSeenHour     int     `json:"last_seen_hour"`
	RiskExplanation  string  `json:"risk_explanation"`
}

// Bucket names, in export order.
const (
	BucketTargetDate      = "target_date_devices"
	BucketBaselineRegular = "baseline_regular_devices"
	BucketAnomalous       = "anomalous_devices"
	BucketBaselineOnly    = "baseline_only_devices"
	BucketLoitering       = "loitering_devices"
)

// Analysis is the complete output of one classification run.
//
// The buckets are not mutually exclusive. A device active on the target
// night is listed in TargetDateDevices and in the bucket of the rule it
// matched; a baseline-only device that also qualifies as regular appears
// in BaselineOnlyDevices and, relabeled BASELINE_REGULAR, in
// BaselineRegularDevices. Consumers must not deduplicate across buckets.
type Analysis struct {
	RunID                  string              `json:"run_id"`
	TargetDate             string              `json:"target_date"`
	TargetDateDevices      []DeviceRiskProfile `json:"target_date_devices"`
	BaselineRegularDevices []DeviceRiskProfile `json:"baseline_regular_devices"`
	AnomalousDevices       []DeviceRiskProfile `json:"anomalous_devices"`
	BaselineOnlyDevices    []DeviceRiskProfile `json:"baseline_only_devices"`
	LoiteringDevices       []DeviceRiskProfile `json:"loitering_devices"`
	ExtendedSessions       []ExtendedSession   `json:"extended_session_devices"`
}

// NewAnalysis returns an analysis with all buckets initialised to empty.
func NewAnalysis(runID, targetDate string) *Analysis {
	return &Analysis{
		RunID:                  runID,
		TargetDate:             targetDate,
		TargetDateDevices:      make([]DeviceRiskProfile, 0),
		BaselineRegularDevices: make([]DeviceRiskProfile, 0),
		AnomalousDevices:       make([]DeviceRiskProfile, 0),
		BaselineOnlyDevices:    make([]DeviceRiskProfile, 0),
		LoiteringDevices:       make([]DeviceRiskProfile, 0),
		ExtendedSessions:       make([]ExtendedSession, 0),
	}
}

// Bucket is a named list of device profiles.
type Bucket struct {
	Name    string
	Devices []DeviceRiskProfile
}

// Buckets returns the five device buckets in export order.
func (a *Analysis) Buckets() []Bucket {
	return []Bucket{
		{Name: BucketTargetDate, Devices: a.TargetDateDevices},
		{Name: BucketBaselineRegular, Devices: a.BaselineRegularDevices},
		{Name: BucketAnomalous, Devices: a.AnomalousDevices},
		{Name: BucketBaselineOnly, Devices: a.BaselineOnlyDevices},
		{Name: BucketLoitering, Devices: a.LoiteringDevices},
	}
}

// Empty reports whether every bucket and the extended-session report are empty.
func (a *Analysis) Empty() bool {
	for _, b := range a.Buckets() {
		if len(b.Devices) > 0 {
			return false
		}
	}
	return len(a.ExtendedSessions) == 0
}
