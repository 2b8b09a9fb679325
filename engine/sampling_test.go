package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplingBaselineTiers(t *testing.T) {
	p := DefaultParams()
	start := time.Unix(1000, 0)

	tests := []struct {
		kind MovementKind
		want AccuracyTier
	}{
		{Stationary, TierCoarse},
		{Walking, TierNavigation},
		{Jogging, TierBest},
		{Running, TierBest},
	}
	for _, tc := range tests {
		c := NewAdaptiveSamplingController(p)
		cfg := c.Select(start, tc.kind)
		assert.Equal(t, tc.want, cfg.Tier, "movement %s", tc.kind)
	}
}

func TestSamplingPowerOnlyDowngrades(t *testing.T) {
	p := DefaultParams()
	start := time.Unix(1000, 0)

	c := NewAdaptiveSamplingController(p)
	c.UpdatePower(PowerState{BatteryPct: 15, Timestamp: start})
	cfg := c.Select(start, Running)
	assert.Equal(t, TierNavigation, cfg.Tier, "low battery should step the tier down")

	// A full battery never upgrades past the movement baseline.
	c2 := NewAdaptiveSamplingController(p)
	c2.UpdatePower(PowerState{BatteryPct: 100, Timestamp: start})
	cfg2 := c2.Select(start, Stationary)
	assert.Equal(t, TierCoarse, cfg2.Tier)
}

func TestSamplingCriticalBatteryForcesCoarse(t *testing.T) {
	p := DefaultParams()
	start := time.Unix(1000, 0)

	c := NewAdaptiveSamplingController(p)
	require.Equal(t, TierBest, c.Select(start, Running).Tier)

	// Critical battery overrides movement and bypasses the hold.
	c.UpdatePower(PowerState{BatteryPct: 5, Timestamp: start})
	cfg := c.Select(start.Add(time.Second), Running)
	assert.Equal(t, TierCoarse, cfg.Tier)
}

func TestSamplingHoldTime(t *testing.T) {
	p := DefaultParams()
	start := time.Unix(1000, 0)

	c := NewAdaptiveSamplingController(p)
	require.Equal(t, TierNavigation, c.Select(start, Walking).Tier)

	// Movement changed but the hold has not elapsed.
	cfg := c.Select(start.Add(5*time.Second), Running)
	assert.Equal(t, TierNavigation, cfg.Tier)

	cfg = c.Select(start.Add(p.TierHold+time.Second), Running)
	assert.Equal(t, TierBest, cfg.Tier)
}

func TestSamplingDisabled(t *testing.T) {
	p := DefaultParams()
	p.AdaptiveSampling = false
	c := NewAdaptiveSamplingController(p)
	cfg := c.Select(time.Unix(1000, 0), Running)
	assert.Equal(t, TierNavigation, cfg.Tier)
}

func TestTierTableIsFixed(t *testing.T) {
	tiers := TierTable()
	require.Len(t, tiers, 4)
	for i := 1; i < len(tiers); i++ {
		assert.Less(t, tiers[i].BatteryPctPerHour, tiers[i-1].BatteryPctPerHour,
			"tiers must trade accuracy for battery monotonically")
		assert.Greater(t, tiers[i].AccuracyMeters, tiers[i-1].AccuracyMeters)
	}
}
