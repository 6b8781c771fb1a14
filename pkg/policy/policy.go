package policy

import (
	"strconv"

	"github.com/opscart/rds-idle-manager/pkg/models"
)

// OverrideTagKey is the per-resource idle window override tag
const OverrideTagKey = "IdleMinutes"

// FallbackIdleMinutes is used when the fleet default source is unavailable
const FallbackIdleMinutes = 30

// Thresholds are the activity ceilings below which a resource counts as
// idle. All three must hold; requiring the conjunction guards against
// false positives such as a connectionless instance running a maintenance
// job that still drives CPU or IOPS.
type Thresholds struct {
	CPUPctMax      float64
	IOPSMax        float64
	ConnectionsMax float64
}

// DefaultThresholds returns the stock policy: any connection, any IOPS, or
// more than 1% CPU keeps a resource running.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPctMax:      1.0,
		IOPSMax:        0,
		ConnectionsMax: 0,
	}
}

// IsIdle classifies a metric sample against the thresholds. Exact equality
// counts as idle.
func IsIdle(sample models.MetricSample, t Thresholds) bool {
	return sample.MaxConnections <= t.ConnectionsMax &&
		sample.TotalIOPS() <= t.IOPSMax &&
		sample.MaxCPUPercent <= t.CPUPctMax
}

// EffectiveIdleWindow resolves the idle window for one resource: the
// IdleMinutes tag override when it parses as a positive integer, otherwise
// the fleet default. Malformed overrides are ignored, never an error.
func EffectiveIdleWindow(tags map[string]string, fleetDefault int) int {
	if raw, ok := tags[OverrideTagKey]; ok {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fleetDefault
}

// LookbackMinutes bounds the observation window for a decision: an override
// can shorten it but never lengthen it past the global cap, keeping the
// metric query cost bounded and within retention.
func LookbackMinutes(window, globalCap int) int {
	if window < globalCap {
		return window
	}
	return globalCap
}
