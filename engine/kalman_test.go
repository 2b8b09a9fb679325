package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testLat = 47.36
	testLon = 8.54
)

// walkFixes generates clean 1 Hz fixes moving east at the given speed.
func walkFixes(start time.Time, n int, speed float64) []PositionFix {
	fixes := make([]PositionFix, n)
	lat, lon := testLat, testLon
	for i := 0; i < n; i++ {
		fixes[i] = PositionFix{
			Latitude:           lat,
			Longitude:          lon,
			HorizontalAccuracy: 5,
			Altitude:           500,
			VerticalAccuracy:   5,
			Speed:              speed,
			Course:             90,
			Timestamp:          start.Add(time.Duration(i) * time.Second),
		}
		lat, lon = DestinationPoint(lat, lon, 90, speed)
	}
	return fixes
}

func TestFilterConvergesOnWalk(t *testing.T) {
	p := DefaultParams()
	f := NewLocationFusionFilter(p)
	start := time.Unix(1000, 0)

	fixes := walkFixes(start, 30, 1.4)
	var last FusedPosition
	for _, fix := range fixes {
		last, _ = f.ProcessFix(fix, false)
	}

	truth := fixes[len(fixes)-1]
	err := Distance(truth.Latitude, truth.Longitude, last.Latitude, last.Longitude)
	assert.Less(t, err, 3.0, "fused track should follow clean fixes closely")
	assert.InDelta(t, 1.4, last.SpeedMps, 0.5)
	assert.Equal(t, FixGood, last.Quality)
}

func TestFilterRejectsTeleport(t *testing.T) {
	p := DefaultParams()
	f := NewLocationFusionFilter(p)
	start := time.Unix(1000, 0)

	fixes := walkFixes(start, 20, 1.4)
	var last FusedPosition
	for _, fix := range fixes {
		last, _ = f.ProcessFix(fix, false)
	}

	// One fix a kilometre away must not drag the estimate along.
	outlier := fixes[len(fixes)-1]
	outlier.Latitude += 0.01
	outlier.Timestamp = outlier.Timestamp.Add(time.Second)
	after, accepted := f.ProcessFix(outlier, false)

	assert.False(t, accepted)
	moved := Distance(last.Latitude, last.Longitude, after.Latitude, after.Longitude)
	assert.Less(t, moved, 20.0)
}

func TestFilterSuppressionScenario(t *testing.T) {
	p := DefaultParams()
	f := NewLocationFusionFilter(p)
	start := time.Unix(1000, 0)

	fixes := walkFixes(start, 30, 1.4)
	var last FusedPosition
	for _, fix := range fixes {
		last, _ = f.ProcessFix(fix, false)
	}
	lastFixPos := last

	// Fixes stop for 15s while motion continues: prediction keeps the track
	// moving and uncertainty only grows.
	gapStart := fixes[len(fixes)-1].Timestamp
	prevUncertainty := last.HorizontalUncertainty
	for i := 1; i <= 15; i++ {
		fused, ok := f.Advance(gapStart.Add(time.Duration(i)*time.Second), false)
		require.True(t, ok)
		assert.GreaterOrEqual(t, fused.HorizontalUncertainty, prevUncertainty,
			"uncertainty must grow monotonically without fixes")
		prevUncertainty = fused.HorizontalUncertainty
		last = fused
	}

	advanced := Distance(lastFixPos.Latitude, lastFixPos.Longitude, last.Latitude, last.Longitude)
	assert.Greater(t, advanced, 10.0, "prediction should keep advancing at walking speed")
	assert.Equal(t, FixPredicted, last.Quality)

	// Past the suppression bound the quality flag degrades.
	degraded, _ := f.Advance(gapStart.Add(p.MaxSuppression+20*time.Second), false)
	assert.Equal(t, FixDegraded, degraded.Quality)
}

func TestFilterReconvergesAfterGap(t *testing.T) {
	p := DefaultParams()
	f := NewLocationFusionFilter(p)
	start := time.Unix(1000, 0)

	fixes := walkFixes(start, 200, 1.4)
	for _, fix := range fixes[:20] {
		f.ProcessFix(fix, false)
	}
	// 30s of prediction only.
	gapStart := fixes[19].Timestamp
	for i := 1; i <= 30; i++ {
		f.Advance(gapStart.Add(time.Duration(i)*time.Second), false)
	}
	// Fixes resume; a few updates should pull quality and uncertainty back.
	var last FusedPosition
	for _, fix := range fixes[50:60] {
		last, _ = f.ProcessFix(fix, false)
	}
	assert.Equal(t, FixGood, last.Quality)
	assert.Less(t, last.HorizontalUncertainty, 10.0)
	truth := fixes[59]
	assert.Less(t, Distance(truth.Latitude, truth.Longitude, last.Latitude, last.Longitude), 10.0)
}

func TestFilterStationarySuppression(t *testing.T) {
	p := DefaultParams()
	f := NewLocationFusionFilter(p)
	start := time.Unix(1000, 0)

	first := PositionFix{
		Latitude: testLat, Longitude: testLon,
		HorizontalAccuracy: 5, Speed: 0,
		Timestamp: start,
	}
	f.ProcessFix(first, false)

	// Stationary fixes only advance the clock; jittery coordinates must not
	// walk the estimate around.
	for i := 1; i <= 20; i++ {
		jitter := first
		jitter.Latitude += 0.00005 // ~5m of noise
		jitter.Timestamp = start.Add(time.Duration(i) * time.Second)
		f.ProcessFix(jitter, true)
	}
	out, _ := f.Advance(start.Add(21*time.Second), true)
	drift := Distance(testLat, testLon, out.Latitude, out.Longitude)
	assert.Less(t, drift, 2.0)
}

func TestPinvRecoversInverse(t *testing.T) {
	a := [][]float64{{4, 1}, {1, 3}}
	inv := pinv(a)
	prod := matMul(a, inv)
	assert.InDelta(t, 1.0, prod[0][0], 1e-9)
	assert.InDelta(t, 0.0, prod[0][1], 1e-9)
	assert.InDelta(t, 1.0, prod[1][1], 1e-9)
}
