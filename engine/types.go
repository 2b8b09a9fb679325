package engine

import (
	"time"
)

// Sample is one timestamped reading from a sensor source. Samples are
// immutable values; the session reorders them by timestamp within a bounded
// window before they touch any state.
type Sample interface {
	When() time.Time
}

// PositionFix is one raw position report (GPS or equivalent).
// HorizontalAccuracy and VerticalAccuracy are 1-sigma metres; a negative
// VerticalAccuracy means the fix carries no usable altitude. A negative
// Speed means speed is unknown.
type PositionFix struct {
	Latitude           float64
	Longitude          float64
	HorizontalAccuracy float64
	Altitude           float64
	VerticalAccuracy   float64
	Speed              float64
	Course             float64
	Timestamp          time.Time
}

func (p PositionFix) When() time.Time { return p.Timestamp }

// MotionSample is one inertial reading. Acceleration is user acceleration
// (gravity removed) in m/s^2, RotationRate in rad/s.
type MotionSample struct {
	Acceleration [3]float64
	RotationRate [3]float64
	Timestamp    time.Time
}

func (m MotionSample) When() time.Time { return m.Timestamp }

// Magnitude returns the L2 norm of the acceleration vector.
func (m MotionSample) Magnitude() float64 {
	return vecNorm3(m.Acceleration)
}

// PressureSample is one barometric reading expressed as relative altitude in
// metres against the barometer's own session-start reference.
type PressureSample struct {
	RelativeAltitude float64
	Timestamp        time.Time
}

func (p PressureSample) When() time.Time { return p.Timestamp }

// PowerState is the periodic device power report.
type PowerState struct {
	BatteryPct float64
	LowPower   bool
	Timestamp  time.Time
}

func (p PowerState) When() time.Time { return p.Timestamp }

// MovementKind is the coarse activity regime.
type MovementKind int

const (
	Stationary MovementKind = iota
	Walking
	Jogging
	Running
)

func (k MovementKind) String() string {
	switch k {
	case Stationary:
		return "stationary"
	case Walking:
		return "walking"
	case Jogging:
		return "jogging"
	case Running:
		return "running"
	}
	return "unknown"
}

// MovementState is the classifier output: regime, window-consistency
// confidence in [0,1], and how long the regime has held.
type MovementState struct {
	Kind       MovementKind
	Confidence float64
	Since      time.Time
}

// AccuracyTier selects one row of the fixed GPS configuration table.
type AccuracyTier int

const (
	TierBest AccuracyTier = iota
	TierNavigation
	TierBalanced
	TierCoarse
)

func (t AccuracyTier) String() string {
	switch t {
	case TierBest:
		return "best"
	case TierNavigation:
		return "navigation"
	case TierBalanced:
		return "balanced"
	case TierCoarse:
		return "coarse"
	}
	return "unknown"
}

// GPSConfig is one row of the sampling tier table. Configs are selected,
// never synthesized.
type GPSConfig struct {
	Tier              AccuracyTier
	AccuracyMeters    float64
	DistanceFilterM   float64
	UpdateInterval    time.Duration
	BatteryPctPerHour float64
}

// FixQuality reports how the current fused position was obtained.
type FixQuality int

const (
	FixGood      FixQuality = iota // measurement-updated
	FixPredicted                   // suppression: prediction only
	FixDegraded                    // suppression exceeded its bound
	FixNone                        // no fix accepted yet
)

func (q FixQuality) String() string {
	switch q {
	case FixGood:
		return "good"
	case FixPredicted:
		return "predicted"
	case FixDegraded:
		return "degraded"
	}
	return "none"
}

// FusedPosition is the filter output for one tick. Ephemeral: recomputed,
// never persisted by the engine.
type FusedPosition struct {
	Latitude              float64
	Longitude             float64
	SmoothedAltitude      float64
	HorizontalUncertainty float64
	SpeedMps              float64
	CourseDeg             float64
	Quality               FixQuality
	Timestamp             time.Time
}

// ElevationConfidence grades the elevation estimate by sensor availability.
type ElevationConfidence int

const (
	ElevationNone ElevationConfidence = iota
	ElevationGPSOnly
	ElevationFused
)

func (c ElevationConfidence) String() string {
	switch c {
	case ElevationFused:
		return "fused"
	case ElevationGPSOnly:
		return "gps-only"
	}
	return "none"
}

// ElevationState is the current elevation estimate plus session accumulators.
// CumulativeGain and CumulativeLoss never decrease during a session.
type ElevationState struct {
	BaseElevation  float64
	CurrentAlt     float64
	CumulativeGain float64
	CumulativeLoss float64
	GradePct       float64
	UncertaintyM   float64
	Confidence     ElevationConfidence
}

// TerrainType is the classified surface underfoot.
type TerrainType int

const (
	Pavement TerrainType = iota
	Gravel
	Trail
	Grass
	Sand
	Snow
)

func (t TerrainType) String() string {
	switch t {
	case Pavement:
		return "pavement"
	case Gravel:
		return "gravel"
	case Trail:
		return "trail"
	case Grass:
		return "grass"
	case Sand:
		return "sand"
	case Snow:
		return "snow"
	}
	return "unknown"
}

// ParseTerrainType maps a surface name to its TerrainType.
func ParseTerrainType(s string) (TerrainType, bool) {
	switch s {
	case "pavement", "paved", "asphalt", "concrete":
		return Pavement, true
	case "gravel", "fine_gravel", "compacted":
		return Gravel, true
	case "trail", "dirt", "ground", "path":
		return Trail, true
	case "grass", "meadow":
		return Grass, true
	case "sand", "beach":
		return Sand, true
	case "snow", "ice":
		return Snow, true
	}
	return Pavement, false
}

// TerrainSegment is one span of the session timeline spent on a single
// surface. End is zero while the segment is open; segments partition the
// timeline with no gaps or overlaps.
type TerrainSegment struct {
	Type      TerrainType
	Start     time.Time
	End       time.Time
	DistanceM float64
}

// EnergyState is the estimator output. CumulativeKcal never decreases.
type EnergyState struct {
	RateKcalPerMin float64
	CumulativeKcal float64
	CILowKcal      float64
	CIHighKcal     float64
}

// SessionContext is caller-owned biometric input. The engine never mutates
// it.
type SessionContext struct {
	BodyMassKg   float64
	LoadMassKg   float64
	SessionStart time.Time
}

// Environment is optional environmental input for the energy correction
// factors. TemperatureC may be NaN when unknown.
type Environment struct {
	TemperatureC float64
}

// Snapshot is one immutable metrics frame, emitted at most once per second
// of sample time. The final snapshot (Final=true) additionally carries the
// closed terrain segments and session totals for the persistence layer.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	Latitude              float64 `json:"lat"`
	Longitude             float64 `json:"lon"`
	Altitude              float64 `json:"altitude_m"`
	HorizontalUncertainty float64 `json:"h_uncertainty_m"`
	SpeedMps              float64 `json:"speed_mps"`
	FixQuality            string  `json:"fix_quality"`
	GPSTier               string  `json:"gps_tier"`

	Movement           string  `json:"movement"`
	MovementConfidence float64 `json:"movement_confidence"`

	GradePct            float64 `json:"grade_pct"`
	CumulativeGainM     float64 `json:"cumulative_gain_m"`
	CumulativeLossM     float64 `json:"cumulative_loss_m"`
	ElevationSigmaM     float64 `json:"elevation_sigma_m"`
	ElevationConfidence string  `json:"elevation_confidence"`

	Terrain           string  `json:"terrain"`
	TerrainMultiplier float64 `json:"terrain_multiplier"`
	TerrainConfidence float64 `json:"terrain_confidence"`

	RateKcalPerMin float64 `json:"rate_kcal_per_min"`
	CumulativeKcal float64 `json:"cumulative_kcal"`
	CILowKcal      float64 `json:"ci_low_kcal"`
	CIHighKcal     float64 `json:"ci_high_kcal"`

	DistanceM float64 `json:"distance_m"`

	Final       bool             `json:"final,omitempty"`
	DurationSec float64          `json:"duration_sec,omitempty"`
	AvgSpeedMps float64          `json:"avg_speed_mps,omitempty"`
	Segments    []TerrainSegment `json:"segments,omitempty"`
}
