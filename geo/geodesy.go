// Package geo provides the small amount of geodesy the coordinator needs:
// WGS84 geodetic-to-ECEF conversion and straight-line distance between ECEF
// points. It is stateless; all functions are pure.
package geo

import "math"

// WGS84 ellipsoid constants.
const (
	// WGS84A is the semi-major axis in metres.
	WGS84A = 6378137.0
	// WGS84F is the flattening.
	WGS84F = 1.0 / 298.257223563
)

// WGS84ESq is the first eccentricity squared, f * (2 - f).
var WGS84ESq = WGS84F * (2.0 - WGS84F)

// Vec3 is an ECEF position or displacement in metres.
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the straight-line distance between two points in metres.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// LLH is a geodetic position: latitude and longitude in degrees, height
// above the WGS84 ellipsoid in metres.
type LLH struct {
	Lat, Lon, Alt float64
}

// ToECEF converts a geodetic position to ECEF coordinates in metres.
func (p LLH) ToECEF() Vec3 {
	lat := p.Lat * math.Pi / 180.0
	lon := p.Lon * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := WGS84A / math.Sqrt(1.0-WGS84ESq*sinLat*sinLat)

	return Vec3{
		X: (n + p.Alt) * cosLat * math.Cos(lon),
		Y: (n + p.Alt) * cosLat * math.Sin(lon),
		Z: (n*(1.0-WGS84ESq) + p.Alt) * sinLat,
	}
}

// Distance returns the straight-line ECEF distance between two geodetic
// positions in metres. For receiver pairing this is preferred over a
// surface great-circle distance because signal paths are line-of-sight.
func Distance(a, b LLH) float64 {
	return a.ToECEF().DistanceTo(b.ToECEF())
}
