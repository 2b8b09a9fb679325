package engine

import (
	"time"
)

// gpsTiers is the fixed sampling configuration table, ordered from most to
// least battery-hungry. Configurations are only ever selected from this
// table.
var gpsTiers = []GPSConfig{
	{Tier: TierBest, AccuracyMeters: 3, DistanceFilterM: 2, UpdateInterval: time.Second, BatteryPctPerHour: 12},
	{Tier: TierNavigation, AccuracyMeters: 5, DistanceFilterM: 5, UpdateInterval: 2 * time.Second, BatteryPctPerHour: 8},
	{Tier: TierBalanced, AccuracyMeters: 10, DistanceFilterM: 10, UpdateInterval: 5 * time.Second, BatteryPctPerHour: 5},
	{Tier: TierCoarse, AccuracyMeters: 100, DistanceFilterM: 50, UpdateInterval: 30 * time.Second, BatteryPctPerHour: 2},
}

// TierTable returns a copy of the fixed GPS configuration table.
func TierTable() []GPSConfig {
	out := make([]GPSConfig, len(gpsTiers))
	copy(out, gpsTiers)
	return out
}

func configForTier(t AccuracyTier) GPSConfig {
	for _, c := range gpsTiers {
		if c.Tier == t {
			return c
		}
	}
	return gpsTiers[len(gpsTiers)-1]
}

// AdaptiveSamplingController picks the GPS configuration for the current
// movement regime and power state. The regime sets the baseline tier, power
// can only downgrade it, and critical battery forces the most conservative
// tier outright. Tier changes are rate-limited so the sampling hardware is
// not reconfigured in oscillation.
type AdaptiveSamplingController struct {
	p Params

	current    GPSConfig
	lastChange time.Time
	power      PowerState
	havePower  bool
}

func NewAdaptiveSamplingController(p Params) *AdaptiveSamplingController {
	return &AdaptiveSamplingController{
		p:       p,
		current: configForTier(TierBalanced),
	}
}

func baselineTier(kind MovementKind) AccuracyTier {
	switch kind {
	case Running:
		return TierBest
	case Jogging:
		return TierBest
	case Walking:
		return TierNavigation
	default:
		return TierCoarse
	}
}

// UpdatePower records the latest device power report.
func (c *AdaptiveSamplingController) UpdatePower(ps PowerState) {
	c.power = ps
	c.havePower = true
}

// Select returns the configuration for the given movement regime at time t.
func (c *AdaptiveSamplingController) Select(t time.Time, movement MovementKind) GPSConfig {
	if !c.p.AdaptiveSampling {
		return configForTier(TierNavigation)
	}

	tier := baselineTier(movement)
	if c.havePower {
		// Power can only push the tier toward coarse, never toward fine.
		if c.power.LowPower || c.power.BatteryPct <= c.p.LowBatteryPct {
			if tier < TierBalanced {
				tier++
			}
		}
		if c.power.BatteryPct <= c.p.CriticalBatPct {
			tier = TierCoarse
		}
	}

	if tier == c.current.Tier {
		return c.current
	}
	// Critical battery bypasses the hold: draining the battery mid-session
	// is a hard failure for the whole system.
	critical := c.havePower && c.power.BatteryPct <= c.p.CriticalBatPct
	if !critical && !c.lastChange.IsZero() && t.Sub(c.lastChange) < c.p.TierHold {
		return c.current
	}

	c.current = configForTier(tier)
	c.lastChange = t
	return c.current
}

// Current returns the configuration selected most recently.
func (c *AdaptiveSamplingController) Current() GPSConfig { return c.current }
