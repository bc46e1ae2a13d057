package rules

import (
	"fmt"

	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// ExtendedSessionRule reports devices that connected during business hours
// and were still active after 18:00, with no minimum duration.
//
// Its findings form a separate report for the exporter and never change a
// device's risk level.
type ExtendedSessionRule struct{}

// NewExtendedSessionRule creates an extended session rule.
func NewExtendedSessionRule() *ExtendedSessionRule {
	return &ExtendedSessionRule{}
}

func (e *ExtendedSessionRule) Name() string {
	return "Extended Session"
}

func (e *ExtendedSessionRule) Description() string {
	return fmt.Sprintf("Connected during business hours and still active after %02d:00.", window.EveningStartHour)
}

func (e *ExtendedSessionRule) Match(s DaySession) (Finding, bool) {
	connected := s.First.Hour()
	lastSeen := s.Last.Hour()

	if !window.IsBusinessHour(connected) || lastSeen < window.EveningStartHour {
		return Finding{}, false
	}

	hours := s.Duration().Hours()
	return Finding{
		Rule:          e.Name(),
		Session:       s,
		DurationHours: roundTenth(hours),
		ArrivedHour:   connected,
		DepartedHour:  lastSeen,
		Explanation: fmt.Sprintf("EXTENDED SESSION: Connected at %02d:00 during business hours, last seen at %02d:00 after hours. Session duration: %.1f hours.",
			connected, lastSeen, hours),
	}, true
}
