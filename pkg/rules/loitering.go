package rules

import (
	"fmt"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// DefaultLoiteringDuration is the minimum stay that counts as loitering.
const DefaultLoiteringDuration = 8 * time.Hour

// LoiteringRule flags a device that arrived during business hours and was
// still connected after 18:00 on the target date, for longer than
// MinDuration. A match overrides every baseline-derived classification.
type LoiteringRule struct {
	MinDuration time.Duration
}

// NewLoiteringRule creates a loitering rule. A non-positive duration
// selects DefaultLoiteringDuration.
func NewLoiteringRule(minDuration time.Duration) *LoiteringRule {
	if minDuration <= 0 {
		minDuration = DefaultLoiteringDuration
	}
	return &LoiteringRule{MinDuration: minDuration}
}

func (l *LoiteringRule) Name() string {
	return "Loitering"
}

func (l *LoiteringRule) Description() string {
	return fmt.Sprintf("Arrived during business hours and stayed past %02d:00 for more than %.0f hours.",
		window.EveningStartHour, l.MinDuration.Hours())
}

func (l *LoiteringRule) Match(s DaySession) (Finding, bool) {
	arrived := s.First.Hour()
	last := s.Last.Hour()

	if !window.IsBusinessHour(arrived) || last < window.EveningStartHour {
		return Finding{}, false
	}
	if s.Duration() <= l.MinDuration {
		return Finding{}, false
	}

	hours := s.Duration().Hours()
	return Finding{
		Rule:          l.Name(),
		Session:       s,
		DurationHours: roundTenth(hours),
		ArrivedHour:   arrived,
		DepartedHour:  last,
		Explanation: fmt.Sprintf("LOITERING PATTERN: Arrived at %02d:00 during business hours, stayed until %02d:00+ (%.1f hours total). "+
			"Unusual for employee to stay this late - potential insider threat or theft preparation.", arrived, last, hours),
	}, true
}
