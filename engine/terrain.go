package engine

import (
	"fmt"
	"time"
)

// HintProvider supplies an optional map-derived surface hint for a
// coordinate. A provider that cannot answer returns ok=false; the classifier
// then runs on motion alone.
type HintProvider interface {
	SurfaceAt(lat, lon float64) (TerrainType, bool)
}

type terrainOverride struct {
	typ   TerrainType
	until time.Time
}

// TerrainClassifier labels the surface underfoot from accelerometer
// variance, with a map hint breaking ties and a caller override pinning the
// type for a bounded duration. Classifications only switch the open segment
// after holding across consecutive evaluation windows, mirroring the
// movement classifier's dwell rule.
type TerrainClassifier struct {
	p     Params
	hints HintProvider

	motion *timeWindow

	current     TerrainType
	confidence  float64
	candidate   TerrainType
	stableCount int
	lastEval    time.Time

	override *terrainOverride

	segments []TerrainSegment
	open     TerrainSegment
	started  bool
}

func NewTerrainClassifier(p Params, hints HintProvider) *TerrainClassifier {
	return &TerrainClassifier{
		p:       p,
		hints:   hints,
		motion:  newTimeWindow(p.TerrainWindow),
		current: Pavement,
	}
}

// Start opens the initial segment at session start.
func (c *TerrainClassifier) Start(t time.Time) {
	if c.started {
		return
	}
	c.open = TerrainSegment{Type: c.current, Start: t}
	c.started = true
	c.lastEval = t
}

// ObserveMotion feeds one acceleration magnitude into the variance window.
func (c *TerrainClassifier) ObserveMotion(t time.Time, magnitude float64) {
	c.motion.Push(t, magnitude)
}

// AddDistance credits travelled distance to the open segment.
func (c *TerrainClassifier) AddDistance(d float64) {
	if d > 0 {
		c.open.DistanceM += d
	}
}

// classifyMotion bands the window variance into a surface type. Low variance
// reads as hard, smooth ground; high variance at low speed reads as a soft,
// energy-sapping surface.
func (c *TerrainClassifier) classifyMotion(speed float64) (TerrainType, float64) {
	v := c.motion.Variance()
	switch {
	case v < c.p.VarBandPavement:
		return Pavement, bandConfidence(v, 0, c.p.VarBandPavement)
	case v < c.p.VarBandTrail:
		return Trail, bandConfidence(v, c.p.VarBandPavement, c.p.VarBandTrail)
	case v < c.p.VarBandGrass:
		return Grass, bandConfidence(v, c.p.VarBandTrail, c.p.VarBandGrass)
	default:
		if speed < c.p.SoftSurfaceSpeed {
			return Sand, 0.7
		}
		return Trail, 0.5
	}
}

// bandConfidence scores how deep inside its band a variance reading sits.
func bandConfidence(v, lo, hi float64) float64 {
	mid := (lo + hi) / 2
	half := (hi - lo) / 2
	if half <= 0 {
		return 0.5
	}
	return clamp(0.95-0.45*absF(v-mid)/half, 0.5, 0.95)
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// SetOverride pins the terrain type until t+duration. The open segment is
// closed at the command time so the override shows up in the timeline at the
// moment it was issued.
func (c *TerrainClassifier) SetOverride(t time.Time, typ TerrainType, duration time.Duration) error {
	if duration <= 0 || duration > c.p.MaxOverride {
		return fmt.Errorf("%w: %s", ErrInvalidOverride, duration)
	}
	c.override = &terrainOverride{typ: typ, until: t.Add(duration)}
	if typ != c.current {
		c.switchSegment(t, typ)
	}
	c.confidence = 1.0
	return nil
}

// Evaluate re-runs classification if the cadence has elapsed. lat/lon feed
// the map hint; haveCoord is false before the first fix.
func (c *TerrainClassifier) Evaluate(t time.Time, lat, lon float64, haveCoord bool, speed float64) {
	if !c.started {
		c.Start(t)
	}
	if c.override != nil {
		if t.Before(c.override.until) {
			return
		}
		c.override = nil
		c.stableCount = 0
		c.candidate = c.current
	}
	if !c.p.TerrainDetection {
		return
	}
	if t.Sub(c.lastEval) < c.p.TerrainCadence {
		return
	}
	c.lastEval = t
	c.motion.Trim(t)
	if c.motion.Len() < 4 {
		return
	}

	cls, conf := c.classifyMotion(speed)
	if c.hints != nil && haveCoord {
		if hint, ok := c.hints.SurfaceAt(lat, lon); ok && conf < 0.7 {
			cls, conf = hint, 0.8
		}
	}

	if cls == c.current {
		c.candidate = cls
		c.stableCount = 0
		c.confidence = conf
		return
	}
	if cls != c.candidate {
		c.candidate = cls
		c.stableCount = 1
		return
	}
	c.stableCount++
	if c.stableCount >= c.p.TerrainStableWins {
		c.switchSegment(t, cls)
		c.confidence = conf
		c.stableCount = 0
	}
}

func (c *TerrainClassifier) switchSegment(t time.Time, typ TerrainType) {
	c.open.End = t
	c.segments = append(c.segments, c.open)
	c.open = TerrainSegment{Type: typ, Start: t}
	c.current = typ
	c.candidate = typ
}

// Current returns the active terrain type, its energy multiplier and the
// classification confidence.
func (c *TerrainClassifier) Current() (TerrainType, float64, float64) {
	return c.current, c.p.Multiplier(c.current), c.confidence
}

// Finalize closes the open segment and returns the full contiguous timeline.
func (c *TerrainClassifier) Finalize(t time.Time) []TerrainSegment {
	if c.started && c.open.End.IsZero() {
		c.open.End = t
		c.segments = append(c.segments, c.open)
	}
	return c.segments
}

// Segments returns the closed segments plus the open one.
func (c *TerrainClassifier) Segments() []TerrainSegment {
	out := make([]TerrainSegment, 0, len(c.segments)+1)
	out = append(out, c.segments...)
	if c.started && c.open.End.IsZero() {
		out = append(out, c.open)
	}
	return out
}
