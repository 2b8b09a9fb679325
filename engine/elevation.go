package engine

import (
	"time"
)

// ElevationFusionEngine fuses GPS altitude with barometric relative-altitude
// deltas. The barometer carries the shape of the elevation profile; GPS
// anchors it once, at calibration, and serves as the fallback when the
// barometer is absent or stale.
type ElevationFusionEngine struct {
	p Params

	calibrated bool
	base       float64

	ma        []float64 // moving average over recent relative altitudes
	smoothRel float64
	baroTime  time.Time
	baroSeen  bool

	current time.Time
	alt     float64
	haveAlt bool

	// Gain/loss accumulate against a reference point; deltas below the
	// noise floor never commit, so sensor jitter cannot drift the totals.
	refAlt  float64
	haveRef bool
	gain    float64
	loss    float64
}

func NewElevationFusionEngine(p Params) *ElevationFusionEngine {
	return &ElevationFusionEngine{p: p}
}

// ObservePressure feeds one barometric relative-altitude reading.
func (e *ElevationFusionEngine) ObservePressure(t time.Time, relAlt float64) {
	e.ma = append(e.ma, relAlt)
	if n := e.p.ElevationSmoothing; n > 0 && len(e.ma) > n {
		e.ma = e.ma[len(e.ma)-n:]
	}
	sum := 0.0
	for _, v := range e.ma {
		sum += v
	}
	e.smoothRel = sum / float64(len(e.ma))
	e.baroTime = t
	e.baroSeen = true

	if e.calibrated {
		e.setAltitude(t, e.base+e.smoothRel)
	}
}

// ObserveGPSAltitude feeds the altitude of a position fix. Fixes with a
// vertical accuracy worse than the gate (or no altitude at all) are ignored.
func (e *ElevationFusionEngine) ObserveGPSAltitude(t time.Time, alt, vertAccuracy float64) {
	if vertAccuracy < 0 || vertAccuracy > e.p.VertAccuracyGateM {
		return
	}
	if !e.calibrated && e.baroFresh(t) {
		// One-shot calibration: the first reliable GPS altitude concurrent
		// with a fresh barometric reading anchors the session base.
		e.base = alt - e.smoothRel
		e.calibrated = true
		e.setAltitude(t, e.base+e.smoothRel)
		return
	}
	if !e.baroFresh(t) {
		e.setAltitude(t, alt)
	}
}

func (e *ElevationFusionEngine) baroFresh(t time.Time) bool {
	return e.baroSeen && t.Sub(e.baroTime) <= e.p.BaroStaleness
}

func (e *ElevationFusionEngine) setAltitude(t time.Time, alt float64) {
	e.current = t
	e.alt = alt
	e.haveAlt = true

	if !e.haveRef {
		e.refAlt = alt
		e.haveRef = true
		return
	}
	delta := alt - e.refAlt
	if delta >= e.p.ElevNoiseFloorM {
		e.gain += delta
		e.refAlt = alt
	} else if delta <= -e.p.ElevNoiseFloorM {
		e.loss += -delta
		e.refAlt = alt
	}
}

// Altitude returns the current altitude estimate and whether one exists.
func (e *ElevationFusionEngine) Altitude() (float64, bool) {
	return e.alt, e.haveAlt
}

// State returns the elevation estimate as of time now. GradePct is filled in
// by the caller from the grade calculator.
func (e *ElevationFusionEngine) State(now time.Time) ElevationState {
	conf := ElevationNone
	sigma := 0.0
	switch {
	case e.calibrated && e.baroFresh(now):
		conf = ElevationFused
		sigma = e.p.ElevFusedSigmaM
	case e.haveAlt:
		conf = ElevationGPSOnly
		sigma = e.p.ElevGPSOnlySigmaM
	}
	return ElevationState{
		BaseElevation:  e.base,
		CurrentAlt:     e.alt,
		CumulativeGain: e.gain,
		CumulativeLoss: e.loss,
		UncertaintyM:   sigma,
		Confidence:     conf,
	}
}
