package engine

import (
	"math"
)

// GradeCalculator derives instantaneous and smoothed grade from elevation
// and horizontal-distance deltas. Grade is clamped to a physical range to
// reject transient sensor spikes and quantized to the minimum meaningful
// resolution.
type GradeCalculator struct {
	p Params

	lastAlt   float64
	haveAlt   bool
	distAccum float64

	instant float64
	recent  []float64
}

func NewGradeCalculator(p Params) *GradeCalculator {
	return &GradeCalculator{p: p}
}

// Observe feeds the current altitude and the horizontal distance advanced
// since the previous call. Grade only updates once enough distance has
// accumulated; dividing by a near-zero run would amplify elevation noise
// into nonsense slopes.
func (g *GradeCalculator) Observe(altitude, distDeltaM float64) {
	if distDeltaM > 0 {
		g.distAccum += distDeltaM
	}
	if !g.haveAlt {
		g.lastAlt = altitude
		g.haveAlt = true
		return
	}
	if g.distAccum < g.p.GradeMinDistM {
		return
	}

	raw := (altitude - g.lastAlt) / g.distAccum * 100
	g.instant = clamp(raw, -g.p.GradeClampPct, g.p.GradeClampPct)

	g.recent = append(g.recent, g.instant)
	if n := g.p.GradeSmoothing; n > 0 && len(g.recent) > n {
		g.recent = g.recent[len(g.recent)-n:]
	}

	g.lastAlt = altitude
	g.distAccum = 0
}

// Instant returns the latest clamped instantaneous grade in percent.
func (g *GradeCalculator) Instant() float64 { return g.instant }

// Smoothed returns the rolling-average grade quantized to the configured
// resolution.
func (g *GradeCalculator) Smoothed() float64 {
	if len(g.recent) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range g.recent {
		sum += v
	}
	avg := sum / float64(len(g.recent))
	if q := g.p.GradeQuantumPct; q > 0 {
		avg = math.Round(avg/q) * q
	}
	return avg
}
