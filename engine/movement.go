package engine

import (
	"time"
)

// MovementClassifier buckets the current activity regime from a rolling
// window of speed samples. A new regime is only emitted after it has held
// for the dwell time, so noise around a threshold cannot flap the state.
type MovementClassifier struct {
	p Params

	speeds  *timeWindow
	motion  *timeWindow
	state   MovementState
	started bool

	candidate      MovementKind
	candidateSince time.Time
}

func NewMovementClassifier(p Params) *MovementClassifier {
	return &MovementClassifier{
		p:      p,
		speeds: newTimeWindow(p.MovementWindow),
		motion: newTimeWindow(p.MovementWindow),
		state:  MovementState{Kind: Stationary, Confidence: 0},
	}
}

func (c *MovementClassifier) classify(speed float64) MovementKind {
	switch {
	case speed < c.p.WalkingThreshold:
		return Stationary
	case speed < c.p.JoggingThreshold:
		return Walking
	case speed < c.p.RunningThreshold:
		return Jogging
	default:
		return Running
	}
}

// ObserveSpeed feeds one speed sample (m/s) into the window. Negative
// (unknown) speeds are ignored.
func (c *MovementClassifier) ObserveSpeed(t time.Time, speed float64) {
	if speed < 0 {
		return
	}
	c.speeds.Push(t, speed)
	c.evaluate(t)
}

// ObserveMotion feeds one acceleration magnitude (m/s^2). A quiet motion
// signal backs up a stationary classification when speed samples are sparse.
func (c *MovementClassifier) ObserveMotion(t time.Time, magnitude float64) {
	c.motion.Push(t, magnitude)
}

func (c *MovementClassifier) evaluate(t time.Time) {
	c.speeds.Trim(t)
	if c.speeds.Len() == 0 {
		return
	}

	raw := c.classify(c.speeds.Mean())
	// A quiet accelerometer overrules a near-threshold walking call.
	if raw == Walking && c.motion.Len() >= 3 && c.motion.Mean() < c.p.QuietMotionMagMps2 {
		raw = Stationary
	}

	if !c.started {
		c.state = MovementState{Kind: raw, Confidence: c.consistency(raw), Since: t}
		c.started = true
		c.candidate = raw
		c.candidateSince = t
		return
	}

	if raw == c.state.Kind {
		c.candidate = raw
		c.candidateSince = t
		c.state.Confidence = c.consistency(raw)
		return
	}

	if raw != c.candidate {
		c.candidate = raw
		c.candidateSince = t
		return
	}
	// Candidate held; switch only after the dwell time.
	if t.Sub(c.candidateSince) >= c.p.MovementDwell {
		c.state = MovementState{Kind: raw, Confidence: c.consistency(raw), Since: t}
	}
}

// consistency is the fraction of window samples that agree with the given
// regime.
func (c *MovementClassifier) consistency(kind MovementKind) float64 {
	if c.speeds.Len() == 0 {
		return 0
	}
	agree := 0
	for _, v := range c.speeds.Values() {
		if c.classify(v) == kind {
			agree++
		}
	}
	return float64(agree) / float64(c.speeds.Len())
}

// Decay is called when the classifier is starved of samples: the regime is
// held but its confidence decays toward zero.
func (c *MovementClassifier) Decay(t time.Time) {
	c.speeds.Trim(t)
	if c.speeds.Len() == 0 {
		c.state.Confidence *= c.p.ConfidenceDecay
	}
}

// Current returns the classifier state.
func (c *MovementClassifier) Current() MovementState { return c.state }
