package engine

import (
	"sort"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
	"github.com/gokaycavdar/go-nightguard/pkg/window"
)

// DeviceAggregate collects one device's out-of-hours activity, split into
// the target night and everything else (the baseline).
type DeviceAggregate struct {
	MAC         string
	Description string
	Networks    map[string]struct{}
	SSIDs       map[string]struct{}
	Target      []models.ConnectionEvent
	Baseline    []models.ConnectionEvent
	Dates       map[string]struct{}
}

func newDeviceAggregate(mac, description string) *DeviceAggregate {
	return &DeviceAggregate{
		MAC:         mac,
		Description: description,
		Networks:    make(map[string]struct{}),
		SSIDs:       make(map[string]struct{}),
		Target:      make([]models.ConnectionEvent, 0),
		Baseline:    make([]models.ConnectionEvent, 0),
		Dates:       make(map[string]struct{}),
	}
}

// TargetCount is the number of connections on the target night.
func (d *DeviceAggregate) TargetCount() int { return len(d.Target) }

// BaselineCount is the number of out-of-hours connections outside the
// target night.
func (d *DeviceAggregate) BaselineCount() int { return len(d.Baseline) }

// DaysSeen is the number of distinct dates with out-of-hours activity,
// target night included.
func (d *DeviceAggregate) DaysSeen() int { return len(d.Dates) }

// NetworkList returns the networks sorted.
func (d *DeviceAggregate) NetworkList() []string { return sortedKeys(d.Networks) }

// SSIDList returns the SSIDs sorted.
func (d *DeviceAggregate) SSIDList() []string { return sortedKeys(d.SSIDs) }

// TargetSpan returns the earliest and latest target-night timestamps, or
// empty strings when the device was absent that night.
func (d *DeviceAggregate) TargetSpan() (first, last string) {
	if len(d.Target) == 0 {
		return "", ""
	}
	times := make([]time.Time, len(d.Target))
	for i, ev := range d.Target {
		times[i], _ = window.ParseTimestamp(ev.Timestamp)
	}
	fi, li := 0, 0
	for i := range times {
		if times[i].Before(times[fi]) {
			fi = i
		}
		if times[i].After(times[li]) {
			li = i
		}
	}
	return d.Target[fi].Timestamp, d.Target[li].Timestamp
}

// Aggregation is the per-device view of a run, in order of each device's
// first out-of-hours appearance.
type Aggregation struct {
	Devices []*DeviceAggregate
	byMAC   map[string]*DeviceAggregate
}

// Get returns the aggregate of a device, or nil.
func (a *Aggregation) Get(mac string) *DeviceAggregate {
	return a.byMAC[mac]
}

// Aggregate builds per-device aggregates from out-of-hours events for the
// night cycle anchored at target. Events without a MAC and events whose
// timestamp cannot be parsed are ignored.
func Aggregate(events []models.ConnectionEvent, target time.Time) *Aggregation {
	cycle := window.Cycle(target)
	agg := &Aggregation{
		Devices: make([]*DeviceAggregate, 0),
		byMAC:   make(map[string]*DeviceAggregate),
	}

	for _, ev := range events {
		if !ev.HasClient() {
			continue
		}
		at, err := window.ParseTimestamp(ev.Timestamp)
		if err != nil || !window.IsOutOfHoursHour(at.Hour()) {
			continue
		}

		dev, ok := agg.byMAC[ev.ClientMac]
		if !ok {
			dev = newDeviceAggregate(ev.ClientMac, ev.ClientDescription)
			agg.byMAC[ev.ClientMac] = dev
			agg.Devices = append(agg.Devices, dev)
		}

		dev.Networks[ev.Network] = struct{}{}
		dev.SSIDs[ev.SSID] = struct{}{}
		dev.Dates[window.FormatDate(at)] = struct{}{}

		if cycle.ContainsTime(at) {
			dev.Target = append(dev.Target, ev)
		} else {
			dev.Baseline = append(dev.Baseline, ev)
		}
	}
	return agg
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
