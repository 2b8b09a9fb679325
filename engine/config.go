package engine

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Params holds every calibratable constant in the engine. The published
// research values behind the defaults are starting points, not truths, so
// all of them load from config file / environment.
type Params struct {
	// Movement classification.
	MovementWindow     time.Duration `mapstructure:"movement_window"`
	MovementDwell      time.Duration `mapstructure:"movement_dwell"`
	WalkingThreshold   float64       `mapstructure:"walking_threshold_mps"`
	JoggingThreshold   float64       `mapstructure:"jogging_threshold_mps"`
	RunningThreshold   float64       `mapstructure:"running_threshold_mps"`
	ConfidenceDecay    float64       `mapstructure:"movement_confidence_decay"`
	QuietMotionMagMps2 float64       `mapstructure:"quiet_motion_mag_mps2"`

	// Adaptive sampling.
	AdaptiveSampling bool          `mapstructure:"adaptive_sampling"`
	TierHold         time.Duration `mapstructure:"tier_hold"`
	LowBatteryPct    float64       `mapstructure:"low_battery_pct"`
	CriticalBatPct   float64       `mapstructure:"critical_battery_pct"`

	// Location fusion.
	SigmaAccel      float64       `mapstructure:"sigma_accel"`
	SigmaPos0       float64       `mapstructure:"sigma_pos0"`
	SigmaVel0       float64       `mapstructure:"sigma_vel0"`
	MinFixAccuracyM float64       `mapstructure:"min_fix_accuracy_m"`
	FixGap          time.Duration `mapstructure:"fix_gap"`
	MaxSuppression  time.Duration `mapstructure:"max_suppression"`
	GateSigma       float64       `mapstructure:"gate_sigma"`
	MaxSpeedMps     float64       `mapstructure:"max_speed_mps"`
	WatchdogSigmaM  float64       `mapstructure:"watchdog_sigma_m"`
	Deceleration    float64       `mapstructure:"deceleration_mps2"`

	// Elevation fusion.
	ElevationSmoothing int           `mapstructure:"elevation_smoothing"`
	BaroStaleness      time.Duration `mapstructure:"baro_staleness"`
	VertAccuracyGateM  float64       `mapstructure:"vert_accuracy_gate_m"`
	ElevFusedSigmaM    float64       `mapstructure:"elev_fused_sigma_m"`
	ElevGPSOnlySigmaM  float64       `mapstructure:"elev_gps_only_sigma_m"`

	// Grade.
	GradeClampPct   float64 `mapstructure:"grade_clamp_pct"`
	GradeSmoothing  int     `mapstructure:"grade_smoothing"`
	ElevNoiseFloorM float64 `mapstructure:"elev_noise_floor_m"`
	GradeMinDistM   float64 `mapstructure:"grade_min_dist_m"`
	GradeQuantumPct float64 `mapstructure:"grade_quantum_pct"`

	// Terrain classification.
	TerrainDetection   bool          `mapstructure:"terrain_detection"`
	TerrainWindow      time.Duration `mapstructure:"terrain_window"`
	TerrainCadence     time.Duration `mapstructure:"terrain_cadence"`
	TerrainStableWins  int           `mapstructure:"terrain_stable_windows"`
	VarBandPavement    float64       `mapstructure:"var_band_pavement"`
	VarBandTrail       float64       `mapstructure:"var_band_trail"`
	VarBandGrass       float64       `mapstructure:"var_band_grass"`
	SoftSurfaceSpeed   float64       `mapstructure:"soft_surface_speed_mps"`
	MaxOverride        time.Duration `mapstructure:"max_override"`
	TerrainMultipliers map[TerrainType]float64

	// Energy expenditure.
	PandolfK1        float64 `mapstructure:"pandolf_k1"`
	PandolfK2        float64 `mapstructure:"pandolf_k2"`
	PandolfK3        float64 `mapstructure:"pandolf_k3"`
	PandolfK4        float64 `mapstructure:"pandolf_k4"`
	TempComfortLowC  float64 `mapstructure:"temp_comfort_low_c"`
	TempComfortHighC float64 `mapstructure:"temp_comfort_high_c"`
	TempPctPerC      float64 `mapstructure:"temp_pct_per_c"`
	TempMaxPct       float64 `mapstructure:"temp_max_pct"`
	AltThresholdM    float64 `mapstructure:"alt_threshold_m"`
	AltPctPer250M    float64 `mapstructure:"alt_pct_per_250m"`
	EnergyCIPct      float64 `mapstructure:"energy_ci_pct"`

	// Session.
	ReorderWindow    time.Duration `mapstructure:"reorder_window"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	QueueDepth       int           `mapstructure:"queue_depth"`
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{
		MovementWindow:     10 * time.Second,
		MovementDwell:      4 * time.Second,
		WalkingThreshold:   0.5,
		JoggingThreshold:   2.0,
		RunningThreshold:   4.0,
		ConfidenceDecay:    0.95,
		QuietMotionMagMps2: 0.1,

		AdaptiveSampling: true,
		TierHold:         30 * time.Second,
		LowBatteryPct:    20.0,
		CriticalBatPct:   10.0,

		SigmaAccel:      0.6,
		SigmaPos0:       10.0,
		SigmaVel0:       1.5,
		MinFixAccuracyM: 3.0,
		FixGap:          10 * time.Second,
		MaxSuppression:  60 * time.Second,
		GateSigma:       5.0,
		MaxSpeedMps:     6.0,
		WatchdogSigmaM:  100.0,
		Deceleration:    0.3,

		ElevationSmoothing: 4,
		BaroStaleness:      15 * time.Second,
		VertAccuracyGateM:  10.0,
		ElevFusedSigmaM:    1.0,
		ElevGPSOnlySigmaM:  4.0,

		GradeClampPct:   45.0,
		GradeSmoothing:  4,
		ElevNoiseFloorM: 0.5,
		GradeMinDistM:   2.0,
		GradeQuantumPct: 0.5,

		TerrainDetection:  true,
		TerrainWindow:     10 * time.Second,
		TerrainCadence:    10 * time.Second,
		TerrainStableWins: 2,
		VarBandPavement:   0.25,
		VarBandTrail:      1.2,
		VarBandGrass:      3.0,
		SoftSurfaceSpeed:  1.8,
		MaxOverride:       30 * time.Minute,
		TerrainMultipliers: map[TerrainType]float64{
			Pavement: 1.0,
			Gravel:   1.1,
			Trail:    1.2,
			Grass:    1.35,
			Sand:     2.1,
			Snow:     2.5,
		},

		PandolfK1:        1.5,
		PandolfK2:        2.0,
		PandolfK3:        1.5,
		PandolfK4:        0.35,
		TempComfortLowC:  5.0,
		TempComfortHighC: 25.0,
		TempPctPerC:      0.4,
		TempMaxPct:       15.0,
		AltThresholdM:    2500.0,
		AltPctPer250M:    1.5,
		EnergyCIPct:      10.0,

		ReorderWindow:    time.Second,
		SnapshotInterval: time.Second,
		QueueDepth:       256,
	}
}

// Multiplier returns the energy-cost multiplier for a terrain type,
// defaulting to 1.0 when the type is not in the table.
func (p Params) Multiplier(t TerrainType) float64 {
	if m, ok := p.TerrainMultipliers[t]; ok {
		return m
	}
	return 1.0
}

// Validate rejects parameter sets that cannot drive the engine.
func (p Params) Validate() error {
	if p.MovementDwell <= 0 || p.MovementWindow <= 0 {
		return fmt.Errorf("engine: movement window/dwell must be positive")
	}
	if !(p.WalkingThreshold < p.JoggingThreshold && p.JoggingThreshold < p.RunningThreshold) {
		return fmt.Errorf("engine: movement thresholds must be strictly increasing")
	}
	if p.GradeClampPct <= 0 || p.GradeClampPct > 100 {
		return fmt.Errorf("engine: grade clamp %.1f%% out of range", p.GradeClampPct)
	}
	if p.MaxOverride <= 0 {
		return fmt.Errorf("engine: max override must be positive")
	}
	if p.ReorderWindow <= 0 || p.SnapshotInterval <= 0 {
		return fmt.Errorf("engine: reorder window and snapshot interval must be positive")
	}
	if p.PandolfK1 <= 0 || p.PandolfK3 <= 0 {
		return fmt.Errorf("engine: pandolf constants must be positive")
	}
	return nil
}

// LoadParams reads parameters from an optional YAML file plus RUCK_-prefixed
// environment overrides, on top of the defaults. An empty path loads
// defaults and environment only.
func LoadParams(path string) (Params, error) {
	v := viper.New()
	v.SetEnvPrefix("RUCK")
	v.AutomaticEnv()

	def := DefaultParams()
	v.SetDefault("movement_window", def.MovementWindow)
	v.SetDefault("movement_dwell", def.MovementDwell)
	v.SetDefault("walking_threshold_mps", def.WalkingThreshold)
	v.SetDefault("jogging_threshold_mps", def.JoggingThreshold)
	v.SetDefault("running_threshold_mps", def.RunningThreshold)
	v.SetDefault("movement_confidence_decay", def.ConfidenceDecay)
	v.SetDefault("quiet_motion_mag_mps2", def.QuietMotionMagMps2)
	v.SetDefault("adaptive_sampling", def.AdaptiveSampling)
	v.SetDefault("tier_hold", def.TierHold)
	v.SetDefault("low_battery_pct", def.LowBatteryPct)
	v.SetDefault("critical_battery_pct", def.CriticalBatPct)
	v.SetDefault("sigma_accel", def.SigmaAccel)
	v.SetDefault("sigma_pos0", def.SigmaPos0)
	v.SetDefault("sigma_vel0", def.SigmaVel0)
	v.SetDefault("min_fix_accuracy_m", def.MinFixAccuracyM)
	v.SetDefault("fix_gap", def.FixGap)
	v.SetDefault("max_suppression", def.MaxSuppression)
	v.SetDefault("gate_sigma", def.GateSigma)
	v.SetDefault("max_speed_mps", def.MaxSpeedMps)
	v.SetDefault("watchdog_sigma_m", def.WatchdogSigmaM)
	v.SetDefault("deceleration_mps2", def.Deceleration)
	v.SetDefault("elevation_smoothing", def.ElevationSmoothing)
	v.SetDefault("baro_staleness", def.BaroStaleness)
	v.SetDefault("vert_accuracy_gate_m", def.VertAccuracyGateM)
	v.SetDefault("elev_fused_sigma_m", def.ElevFusedSigmaM)
	v.SetDefault("elev_gps_only_sigma_m", def.ElevGPSOnlySigmaM)
	v.SetDefault("grade_clamp_pct", def.GradeClampPct)
	v.SetDefault("grade_smoothing", def.GradeSmoothing)
	v.SetDefault("elev_noise_floor_m", def.ElevNoiseFloorM)
	v.SetDefault("grade_min_dist_m", def.GradeMinDistM)
	v.SetDefault("grade_quantum_pct", def.GradeQuantumPct)
	v.SetDefault("terrain_detection", def.TerrainDetection)
	v.SetDefault("terrain_window", def.TerrainWindow)
	v.SetDefault("terrain_cadence", def.TerrainCadence)
	v.SetDefault("terrain_stable_windows", def.TerrainStableWins)
	v.SetDefault("var_band_pavement", def.VarBandPavement)
	v.SetDefault("var_band_trail", def.VarBandTrail)
	v.SetDefault("var_band_grass", def.VarBandGrass)
	v.SetDefault("soft_surface_speed_mps", def.SoftSurfaceSpeed)
	v.SetDefault("max_override", def.MaxOverride)
	v.SetDefault("pandolf_k1", def.PandolfK1)
	v.SetDefault("pandolf_k2", def.PandolfK2)
	v.SetDefault("pandolf_k3", def.PandolfK3)
	v.SetDefault("pandolf_k4", def.PandolfK4)
	v.SetDefault("temp_comfort_low_c", def.TempComfortLowC)
	v.SetDefault("temp_comfort_high_c", def.TempComfortHighC)
	v.SetDefault("temp_pct_per_c", def.TempPctPerC)
	v.SetDefault("temp_max_pct", def.TempMaxPct)
	v.SetDefault("alt_threshold_m", def.AltThresholdM)
	v.SetDefault("alt_pct_per_250m", def.AltPctPer250M)
	v.SetDefault("energy_ci_pct", def.EnergyCIPct)
	v.SetDefault("reorder_window", def.ReorderWindow)
	v.SetDefault("snapshot_interval", def.SnapshotInterval)
	v.SetDefault("queue_depth", def.QueueDepth)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Params{}, fmt.Errorf("read config: %w", err)
		}
	}

	p := def
	if err := v.Unmarshal(&p); err != nil {
		return Params{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// Multiplier overrides come in as surface-name keys.
	if sub := v.GetStringMap("terrain_multipliers"); len(sub) > 0 {
		mult := make(map[TerrainType]float64, len(def.TerrainMultipliers))
		for k, m := range def.TerrainMultipliers {
			mult[k] = m
		}
		for name := range sub {
			if tt, ok := ParseTerrainType(name); ok {
				mult[tt] = v.GetFloat64("terrain_multipliers." + name)
			}
		}
		p.TerrainMultipliers = mult
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
