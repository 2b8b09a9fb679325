package engine

import (
	"errors"
	"math"
)

// Sentinel errors for boundary validation. Recoverable sensor degradation is
// never an error; it travels as snapshot quality metadata.
var (
	ErrInvalidMass     = errors.New("engine: body and load mass must be positive")
	ErrInvalidOverride = errors.New("engine: override duration out of range")
	ErrSessionStopped  = errors.New("engine: session already stopped")
)

// Physical conversion constants.
const (
	WattsToKcalPerMin = 60.0 / 4184.0 // 1 W sustained for one minute, in kcal
	EarthRadiusMeters = 6371008.8
)

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

func pow2(x float64) float64 { return x * x }

func vecNorm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func allFiniteMat(m [][]float64) bool {
	for i := range m {
		if !allFinite(m[i]) {
			return false
		}
	}
	return true
}
