package engine

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is the single-writer isolation unit driving the whole engine. All
// sensor callbacks enqueue into one channel drained by one goroutine, so a
// position update can never race a pressure update on shared state. Samples
// are reordered by timestamp inside a bounded window before being applied.
type Session struct {
	id  uuid.UUID
	p   Params
	ctx SessionContext

	in   chan any
	out  chan Snapshot
	done chan struct{}

	stopOnce sync.Once
	stopped  atomic.Bool
	final    Snapshot

	// Everything below is owned by the run goroutine.
	movement  *MovementClassifier
	sampler   *AdaptiveSamplingController
	filter    *LocationFusionFilter
	elevation *ElevationFusionEngine
	grade     *GradeCalculator
	terrain   *TerrainClassifier
	energy    *EnergyExpenditureEstimator

	buffer      []Sample
	maxSeen     time.Time
	clock       time.Time
	lastSnap    time.Time
	lastArrival time.Time

	fused     FusedPosition
	haveFused bool
	distance  float64
}

type overrideMsg struct {
	typ   TerrainType
	dur   time.Duration
	reply chan error
}

type environmentMsg struct {
	env Environment
}

type stopMsg struct {
	reply chan Snapshot
}

// SessionOption configures optional collaborators.
type SessionOption func(*Session)

// WithMapHints attaches a terrain surface-hint provider.
func WithMapHints(h HintProvider) SessionOption {
	return func(s *Session) {
		s.terrain = NewTerrainClassifier(s.p, h)
	}
}

// NewSession validates the inputs, builds all components and starts the
// session goroutine. The caller keeps ownership of ctx; it is never mutated.
func NewSession(ctx SessionContext, p Params, opts ...SessionOption) (*Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	energy, err := NewEnergyExpenditureEstimator(ctx, p)
	if err != nil {
		return nil, err
	}
	if ctx.SessionStart.IsZero() {
		ctx.SessionStart = time.Now()
	}

	s := &Session{
		id:        uuid.New(),
		p:         p,
		ctx:       ctx,
		in:        make(chan any, p.QueueDepth),
		out:       make(chan Snapshot, 8),
		done:      make(chan struct{}),
		movement:  NewMovementClassifier(p),
		sampler:   NewAdaptiveSamplingController(p),
		filter:    NewLocationFusionFilter(p),
		elevation: NewElevationFusionEngine(p),
		grade:     NewGradeCalculator(p),
		terrain:   NewTerrainClassifier(p, nil),
		energy:    energy,
		clock:     ctx.SessionStart,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.terrain.Start(ctx.SessionStart)
	go s.run()
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id.String() }

// Snapshots is the output stream: immutable metric frames at most one per
// second of sample time. Slow consumers lose frames rather than stalling the
// engine.
func (s *Session) Snapshots() <-chan Snapshot { return s.out }

// OnPosition, OnMotion, OnPressure and OnPower are the per-source sample
// entry points. They never block the caller: a full queue drops the sample.
func (s *Session) OnPosition(f PositionFix) { s.enqueue(f) }
func (s *Session) OnMotion(m MotionSample)  { s.enqueue(m) }
func (s *Session) OnPressure(p PressureSample) {
	s.enqueue(p)
}
func (s *Session) OnPower(p PowerState) { s.enqueue(p) }

func (s *Session) enqueue(m any) {
	if s.stopped.Load() {
		return
	}
	select {
	case s.in <- m:
	default:
	}
}

// SetTerrainOverride pins the terrain type for the given duration, after
// which automatic classification resumes. Out-of-range durations are
// rejected.
func (s *Session) SetTerrainOverride(typ TerrainType, dur time.Duration) error {
	if s.stopped.Load() {
		return ErrSessionStopped
	}
	reply := make(chan error, 1)
	select {
	case s.in <- overrideMsg{typ: typ, dur: dur, reply: reply}:
	case <-s.done:
		return ErrSessionStopped
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrSessionStopped
	}
}

// SetEnvironment feeds optional environmental conditions to the energy
// estimator.
func (s *Session) SetEnvironment(env Environment) {
	if s.stopped.Load() {
		return
	}
	select {
	case s.in <- environmentMsg{env: env}:
	case <-s.done:
	}
}

// Stop finalizes the session: buffered samples are flushed, the open terrain
// segment is closed, totals freeze, and the final snapshot is returned.
// Stop is idempotent; samples arriving afterwards are dropped.
func (s *Session) Stop() Snapshot {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		reply := make(chan Snapshot, 1)
		s.in <- stopMsg{reply: reply}
		s.final = <-reply
	})
	return s.final
}

func (s *Session) run() {
	ticker := time.NewTicker(s.p.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case m := <-s.in:
			switch v := m.(type) {
			case overrideMsg:
				v.reply <- s.terrain.SetOverride(s.clock, v.typ, v.dur)
			case environmentMsg:
				s.energy.SetEnvironment(v.env)
			case stopMsg:
				s.flushBuffer()
				v.reply <- s.finalize()
				close(s.done)
				close(s.out)
				return
			case Sample:
				s.lastArrival = time.Now()
				s.ingest(v)
			}
		case <-ticker.C:
			// During live gaps the sample clock stalls; flush whatever the
			// reorder buffer holds so late consumers still see state.
			if len(s.buffer) > 0 && time.Since(s.lastArrival) > s.p.ReorderWindow {
				s.flushBuffer()
			}
		}
	}
}

// ingest inserts a sample into the reorder buffer and applies everything at
// or below the watermark. A sample older than the session clock arrived
// outside the reorder window and is dropped; applying it would rewind state.
func (s *Session) ingest(smp Sample) {
	ts := smp.When()
	if ts.Before(s.clock) {
		return
	}
	if ts.After(s.maxSeen) {
		s.maxSeen = ts
	}
	idx := sort.Search(len(s.buffer), func(i int) bool {
		return s.buffer[i].When().After(ts)
	})
	s.buffer = append(s.buffer, nil)
	copy(s.buffer[idx+1:], s.buffer[idx:])
	s.buffer[idx] = smp

	watermark := s.maxSeen.Add(-s.p.ReorderWindow)
	for len(s.buffer) > 0 && !s.buffer[0].When().After(watermark) {
		s.apply(s.buffer[0])
		s.buffer = s.buffer[1:]
	}
}

func (s *Session) flushBuffer() {
	for _, smp := range s.buffer {
		s.apply(smp)
	}
	s.buffer = s.buffer[:0]
}

func (s *Session) apply(smp Sample) {
	ts := smp.When()
	if ts.After(s.clock) {
		s.clock = ts
	}

	switch v := smp.(type) {
	case PositionFix:
		s.movement.ObserveSpeed(ts, v.Speed)
		st := s.movement.Current()
		s.sampler.Select(ts, st.Kind)
		fused, _ := s.filter.ProcessFix(v, st.Kind == Stationary)
		s.advanceTrack(fused, st.Kind)
		s.elevation.ObserveGPSAltitude(ts, v.Altitude, v.VerticalAccuracy)

	case MotionSample:
		mag := v.Magnitude()
		s.movement.ObserveMotion(ts, mag)
		s.movement.Decay(ts)
		s.terrain.ObserveMotion(ts, mag)
		if s.filter.Initialized() {
			fused, ok := s.filter.Advance(ts, mag < s.p.QuietMotionMagMps2)
			if ok {
				s.advanceTrack(fused, s.movement.Current().Kind)
			}
		}

	case PressureSample:
		s.elevation.ObservePressure(ts, v.RelativeAltitude)

	case PowerState:
		s.sampler.UpdatePower(v)
		s.sampler.Select(ts, s.movement.Current().Kind)
	}

	s.terrain.Evaluate(ts, s.fused.Latitude, s.fused.Longitude, s.haveFused, s.fused.SpeedMps)

	_, eta, _ := s.terrain.Current()
	alt, haveAlt := s.elevation.Altitude()
	s.energy.Advance(ts, s.fused.SpeedMps, s.grade.Smoothed(), eta, alt, haveAlt)

	if s.lastSnap.IsZero() || ts.Sub(s.lastSnap) >= s.p.SnapshotInterval {
		s.emit(ts, false)
		s.lastSnap = ts
	}
}

// advanceTrack folds a new fused position into distance, grade and terrain
// bookkeeping.
func (s *Session) advanceTrack(fused FusedPosition, kind MovementKind) {
	if fused.Quality == FixNone {
		return
	}
	if s.haveFused && kind != Stationary {
		d := Distance(s.fused.Latitude, s.fused.Longitude, fused.Latitude, fused.Longitude)
		if d > 0 {
			s.distance += d
			s.terrain.AddDistance(d)
			if alt, ok := s.elevation.Altitude(); ok {
				s.grade.Observe(alt, d)
			}
		}
	}
	s.fused = fused
	s.haveFused = true
}

func (s *Session) snapshot(ts time.Time) Snapshot {
	mv := s.movement.Current()
	terr, eta, terrConf := s.terrain.Current()
	elev := s.elevation.State(ts)
	elev.GradePct = s.grade.Smoothed()
	en := s.energy.State()

	return Snapshot{
		SessionID: s.id.String(),
		Timestamp: ts,

		Latitude:              s.fused.Latitude,
		Longitude:             s.fused.Longitude,
		Altitude:              elev.CurrentAlt,
		HorizontalUncertainty: s.fused.HorizontalUncertainty,
		SpeedMps:              s.fused.SpeedMps,
		FixQuality:            s.fused.Quality.String(),
		GPSTier:               s.sampler.Current().Tier.String(),

		Movement:           mv.Kind.String(),
		MovementConfidence: mv.Confidence,

		GradePct:            elev.GradePct,
		CumulativeGainM:     elev.CumulativeGain,
		CumulativeLossM:     elev.CumulativeLoss,
		ElevationSigmaM:     elev.UncertaintyM,
		ElevationConfidence: elev.Confidence.String(),

		Terrain:           terr.String(),
		TerrainMultiplier: eta,
		TerrainConfidence: terrConf,

		RateKcalPerMin: en.RateKcalPerMin,
		CumulativeKcal: en.CumulativeKcal,
		CILowKcal:      en.CILowKcal,
		CIHighKcal:     en.CIHighKcal,

		DistanceM: s.distance,
	}
}

func (s *Session) emit(ts time.Time, final bool) {
	snap := s.snapshot(ts)
	snap.Final = final
	select {
	case s.out <- snap:
	default:
	}
}

func (s *Session) finalize() Snapshot {
	end := s.clock
	if end.Before(s.ctx.SessionStart) {
		end = s.ctx.SessionStart
	}
	snap := s.snapshot(end)
	snap.Final = true
	snap.Segments = s.terrain.Finalize(end)
	snap.DurationSec = end.Sub(s.ctx.SessionStart).Seconds()
	if snap.DurationSec > 0 {
		snap.AvgSpeedMps = s.distance / snap.DurationSec
	}
	return snap
}
