package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	// One millidegree of latitude is ~111 m anywhere on the globe.
	d := Distance(47.0, 8.0, 47.001, 8.0)
	assert.InDelta(t, 111.2, d, 1.0)

	assert.Zero(t, Distance(47.0, 8.0, 47.0, 8.0))

	// Longitude shrinks with latitude.
	dEq := Distance(0, 0, 0, 0.001)
	dHi := Distance(60, 0, 60, 0.001)
	assert.InDelta(t, dEq/2, dHi, 1.0)
}

func TestBearing(t *testing.T) {
	assert.InDelta(t, 0, Bearing(47, 8, 48, 8), 0.01)
	assert.InDelta(t, 180, Bearing(48, 8, 47, 8), 0.01)
	assert.InDelta(t, 90, Bearing(0, 8, 0, 9), 0.01)
	assert.InDelta(t, 270, Bearing(0, 9, 0, 8), 0.01)
}

func TestDestinationPointRoundTrip(t *testing.T) {
	lat, lon := DestinationPoint(47.36, 8.54, 45, 1000)
	d := Distance(47.36, 8.54, lat, lon)
	assert.InDelta(t, 1000, d, 0.5)
	assert.InDelta(t, 45, Bearing(47.36, 8.54, lat, lon), 0.1)
}

func TestENUProjectorRoundTrip(t *testing.T) {
	p := newENUProjector(47.36, 8.54)

	x, y := p.Forward(47.36, 8.54)
	assert.Zero(t, x)
	assert.Zero(t, y)

	// 100 m north and 50 m east, back and forth.
	lat, lon := p.Inverse(50, 100)
	x, y = p.Forward(lat, lon)
	assert.InDelta(t, 50, x, 1e-6)
	assert.InDelta(t, 100, y, 1e-6)

	d := Distance(47.36, 8.54, lat, 8.54)
	assert.InDelta(t, 100, d, 0.1)
}
