package engine

import (
	"math"

	"github.com/golang/geo/s2"
)

// Distance returns the great-circle distance between two points in metres.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Bearing returns the initial bearing from point 1 to point 2 in degrees,
// normalized to [0, 360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lonDiff := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(lonDiff) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(lonDiff)
	bearing := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(bearing+360, 360)
}

// DestinationPoint returns the point reached from (lat, lon) after travelling
// distance metres on the given bearing (degrees).
func DestinationPoint(lat, lon, bearing, distance float64) (float64, float64) {
	p := s2.LatLngFromDegrees(lat, lon)
	bearingRad := bearing * math.Pi / 180
	angular := distance / EarthRadiusMeters

	latRad := p.Lat.Radians()
	lonRad := p.Lng.Radians()

	lat2 := math.Asin(math.Sin(latRad)*math.Cos(angular) +
		math.Cos(latRad)*math.Sin(angular)*math.Cos(bearingRad))
	lon2 := lonRad + math.Atan2(
		math.Sin(bearingRad)*math.Sin(angular)*math.Cos(latRad),
		math.Cos(angular)-math.Sin(latRad)*math.Sin(lat2))

	return lat2 * 180 / math.Pi, lon2 * 180 / math.Pi
}

// enuProjector maps geodetic coordinates onto a local east/north plane in
// metres, anchored at the first accepted fix. A flat-plane approximation is
// fine at session scale (tens of km) against ~5m GPS accuracy.
type enuProjector struct {
	lat0   float64
	lon0   float64
	cosLat float64
}

func newENUProjector(lat, lon float64) *enuProjector {
	return &enuProjector{
		lat0:   lat,
		lon0:   lon,
		cosLat: math.Cos(lat * math.Pi / 180),
	}
}

// Forward converts lat/lon degrees into east/north metres.
func (p *enuProjector) Forward(lat, lon float64) (x, y float64) {
	x = (lon - p.lon0) * math.Pi / 180 * EarthRadiusMeters * p.cosLat
	y = (lat - p.lat0) * math.Pi / 180 * EarthRadiusMeters
	return x, y
}

// Inverse converts east/north metres back into lat/lon degrees.
func (p *enuProjector) Inverse(x, y float64) (lat, lon float64) {
	lat = p.lat0 + y/EarthRadiusMeters*180/math.Pi
	lon = p.lon0 + x/(EarthRadiusMeters*p.cosLat)*180/math.Pi
	return lat, lon
}
