package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedMotion pushes alternating magnitudes whose window variance lands in a
// chosen band, evaluating at 1 Hz like the session does.
func feedMotion(c *TerrainClassifier, from time.Time, seconds int, lo, hi, speed float64) time.Time {
	ts := from
	for i := 0; i < seconds; i++ {
		ts = from.Add(time.Duration(i) * time.Second)
		mag := lo
		if i%2 == 1 {
			mag = hi
		}
		c.ObserveMotion(ts, mag)
		c.Evaluate(ts, testLat, testLon, true, speed)
	}
	return ts
}

func TestTerrainDefaultsToPavement(t *testing.T) {
	p := DefaultParams()
	c := NewTerrainClassifier(p, nil)
	start := time.Unix(1000, 0)
	c.Start(start)

	// Constant low magnitude: near-zero variance.
	feedMotion(c, start, 30, 0.3, 0.32, 1.4)
	typ, mult, _ := c.Current()
	assert.Equal(t, Pavement, typ)
	assert.Equal(t, 1.0, mult)
}

func TestTerrainSwitchRequiresStableWindows(t *testing.T) {
	p := DefaultParams()
	c := NewTerrainClassifier(p, nil)
	start := time.Unix(1000, 0)
	c.Start(start)

	feedMotion(c, start, 15, 0.3, 0.32, 1.4)
	require.Equal(t, Pavement, mustType(c))

	// Rough motion (variance ~2.25, grass band). The first evaluation only
	// nominates a candidate; the switch lands after the second.
	rough := start.Add(15 * time.Second)
	feedMotion(c, rough, 12, 0.5, 3.5, 1.4)
	assert.Equal(t, Pavement, mustType(c), "one window must not switch the segment")

	feedMotion(c, rough.Add(12*time.Second), 15, 0.5, 3.5, 1.4)
	assert.Equal(t, Grass, mustType(c))
}

func TestTerrainSoftSurfaceAtLowSpeed(t *testing.T) {
	p := DefaultParams()
	c := NewTerrainClassifier(p, nil)
	start := time.Unix(1000, 0)
	c.Start(start)

	// Very high variance at trudging speed reads as sand.
	feedMotion(c, start, 45, 0.0, 4.5, 1.0)
	assert.Equal(t, Sand, mustType(c))
}

func TestTerrainDetectionDisabledPinsPavement(t *testing.T) {
	p := DefaultParams()
	p.TerrainDetection = false
	c := NewTerrainClassifier(p, nil)
	start := time.Unix(1000, 0)
	c.Start(start)

	// Motion that would classify as sand when detection is on.
	end := feedMotion(c, start, 60, 0.0, 4.5, 1.0)
	assert.Equal(t, Pavement, mustType(c))

	// Overrides bypass the detector entirely, so they still apply.
	require.NoError(t, c.SetOverride(end, Snow, 5*time.Minute))
	assert.Equal(t, Snow, mustType(c))
}

func TestTerrainSegmentsPartitionTimeline(t *testing.T) {
	p := DefaultParams()
	c := NewTerrainClassifier(p, nil)
	start := time.Unix(1000, 0)
	c.Start(start)

	ts := feedMotion(c, start, 30, 0.3, 0.32, 1.4)
	ts = feedMotion(c, ts.Add(time.Second), 40, 0.5, 3.5, 1.4)
	end := ts.Add(10 * time.Second)
	segs := c.Finalize(end)

	require.NotEmpty(t, segs)
	assert.Equal(t, start, segs[0].Start)
	assert.Equal(t, end, segs[len(segs)-1].End)
	for i := 1; i < len(segs); i++ {
		assert.Equal(t, segs[i-1].End, segs[i].Start,
			"segments must be contiguous with no gaps or overlaps")
	}
	for _, s := range segs {
		assert.False(t, s.End.Before(s.Start))
	}
}

func TestTerrainOverride(t *testing.T) {
	p := DefaultParams()
	c := NewTerrainClassifier(p, nil)
	start := time.Unix(1000, 0)
	c.Start(start)

	feedMotion(c, start, 15, 0.3, 0.32, 1.4)

	ovAt := start.Add(15 * time.Second)
	require.NoError(t, c.SetOverride(ovAt, Snow, 5*time.Minute))
	typ, mult, conf := c.Current()
	assert.Equal(t, Snow, typ)
	assert.Equal(t, p.Multiplier(Snow), mult)
	assert.Equal(t, 1.0, conf)

	// The override pins the type against contradicting motion.
	feedMotion(c, ovAt.Add(time.Second), 60, 0.3, 0.32, 1.4)
	assert.Equal(t, Snow, mustType(c))

	// After the revert timeout, automatic classification resumes.
	after := ovAt.Add(5*time.Minute + time.Second)
	feedMotion(c, after, 45, 0.3, 0.32, 1.4)
	assert.Equal(t, Pavement, mustType(c))

	// The override boundary shows up in the timeline at the command time.
	segs := c.Segments()
	found := false
	for _, s := range segs {
		if s.Type == Snow && s.Start.Equal(ovAt) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTerrainOverrideValidation(t *testing.T) {
	p := DefaultParams()
	c := NewTerrainClassifier(p, nil)
	start := time.Unix(1000, 0)
	c.Start(start)

	assert.ErrorIs(t, c.SetOverride(start, Sand, 0), ErrInvalidOverride)
	assert.ErrorIs(t, c.SetOverride(start, Sand, -time.Minute), ErrInvalidOverride)
	assert.ErrorIs(t, c.SetOverride(start, Sand, p.MaxOverride+time.Minute), ErrInvalidOverride)
	assert.NoError(t, c.SetOverride(start, Sand, p.MaxOverride))
}

type stubHints struct {
	typ TerrainType
	ok  bool
}

func (s stubHints) SurfaceAt(lat, lon float64) (TerrainType, bool) { return s.typ, s.ok }

func TestTerrainMapHintBreaksLowConfidence(t *testing.T) {
	p := DefaultParams()
	c := NewTerrainClassifier(p, stubHints{typ: Gravel, ok: true})
	start := time.Unix(1000, 0)
	c.Start(start)

	// Variance parked on a band edge keeps motion confidence low, letting
	// the map hint decide.
	feedMotion(c, start, 60, 0.0, 1.0, 1.4)
	assert.Equal(t, Gravel, mustType(c))
}

func mustType(c *TerrainClassifier) TerrainType {
	typ, _, _ := c.Current()
	return typ
}
