package engine

import (
	"fmt"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/rules"
)

// isRegular reports whether the baseline alone explains the device:
// seen on at least two dates, or at least three baseline connections.
func isRegular(dev *DeviceAggregate) bool {
	return (dev.BaselineCount() >= 1 && dev.DaysSeen() >= 2) || dev.BaselineCount() >= 3
}

// classifyTarget labels a device active on the target night. The rules are
// evaluated in order and the first match wins. It returns the bucket the
// profile belongs to besides target_date_devices.
//
// Loitering devices land in anomalous_devices; the loitering bucket itself
// is filled from the detector output.
func classifyTarget(p *models.DeviceRiskProfile, dev *DeviceAggregate, loitering map[string]rules.Finding) string {
	target := dev.TargetCount()
	baseline := dev.BaselineCount()
	days := dev.DaysSeen()

	if f, ok := loitering[dev.MAC]; ok {
		p.RiskLevel = models.RiskLoiteringSuspicious
		p.RiskExplanation = f.Explanation
		p.Session = sessionDetail(f)
		return models.BucketAnomalous
	}

	switch {
	case baseline == 0:
		p.RiskLevel = models.RiskAnomalousSuspicious
		p.RiskExplanation = fmt.Sprintf("NEVER seen out-of-hours in 7-day baseline period. "+
			"This device appeared for the first time during incident window (%d connections on target date). "+
			"Could be: intruder device, stolen device, or employee device used during theft.", target)
		return models.BucketAnomalous

	case baseline >= 1 && days >= 2:
		p.RiskLevel = models.RiskBaselineRegular
		p.RiskExplanation = fmt.Sprintf("Regular out-of-hours device: %d baseline connections across %d days. "+
			"Expected to be present during incident window.", baseline, days)
		return models.BucketBaselineRegular

	case baseline >= 3:
		p.RiskLevel = models.RiskBaselineRegular
		p.RiskExplanation = fmt.Sprintf("Regular out-of-hours device: %d baseline connections (single day pattern). "+
			"Likely IoT/always-on device.", baseline)
		return models.BucketBaselineRegular

	default:
		p.RiskLevel = models.RiskAnomalousSuspicious
		p.RiskExplanation = fmt.Sprintf("Suspicious pattern: Only %d baseline connections on %d day(s), "+
			"but %d connections on target date. "+
			"Could be: employee working unusual hours, device brought in for theft, or coincidental usage.",
			baseline, days, target)
		return models.BucketAnomalous
	}
}

// classifyBaselineOnly labels a device seen in the baseline but absent on
// the target night.
func classifyBaselineOnly(p *models.DeviceRiskProfile, dev *DeviceAggregate) {
	baseline := dev.BaselineCount()
	days := dev.DaysSeen()

	p.RiskLevel = models.RiskBaselineOnly
	if days >= 3 {
		p.RiskExplanation = fmt.Sprintf("Always-on device: %d baseline connections across %d days, "+
			"but NO connections on target date. "+
			"Could be normal (stayed connected) or suspicious (device turned off/removed during incident).",
			baseline, days)
		return
	}
	p.RiskExplanation = fmt.Sprintf("Baseline device: %d baseline connections on %d day(s), "+
		"but absent on target date. Monitor for unusual absence pattern.", baseline, days)
}
