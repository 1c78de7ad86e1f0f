package geo

import (
	"math"
)

// EarthRadiusNM is the mean Earth radius in nautical miles
const EarthRadiusNM = 3440.07

// Point is a position in latitude/longitude degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point carries usable coordinates. The zero
// point (0,0) sits in the Gulf of Guinea and is treated as "no data",
// the same convention ADS-B feeds use for missing positions.
func (p Point) Valid() bool {
	if p.Lat == 0 && p.Lon == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceNM calculates the great-circle distance in nautical miles
// between two points using the Haversine formula
func DistanceNM(a, b Point) float64 {
	rad := math.Pi / 180.0

	lat1 := a.Lat * rad
	lon1 := a.Lon * rad
	lat2 := b.Lat * rad
	lon2 := b.Lon * rad

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusNM * c
}

// Bearing calculates the initial bearing in degrees from point a to point b.
// Returns a value between 0 and 360 degrees (0 = North, 90 = East, etc.)
func Bearing(a, b Point) float64 {
	rad := math.Pi / 180.0

	lat1 := a.Lat * rad
	lon1 := a.Lon * rad
	lat2 := b.Lat * rad
	lon2 := b.Lon * rad

	y := math.Sin(lon2-lon1) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lon2-lon1)
	bearing := math.Atan2(y, x) * 180.0 / math.Pi

	return math.Mod(bearing+360.0, 360.0)
}

// Displace returns the point reached by travelling distanceNM along the
// given bearing from p, on the great circle
func Displace(p Point, bearingDeg, distanceNM float64) Point {
	rad := math.Pi / 180.0

	lat1 := p.Lat * rad
	lon1 := p.Lon * rad
	brg := bearingDeg * rad
	d := distanceNM / EarthRadiusNM // angular distance

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 / rad,
		Lon: math.Mod(lon2/rad+540.0, 360.0) - 180.0,
	}
}

// NormalizeHeading reduces a heading to [0, 360)
func NormalizeHeading(h float64) float64 {
	h = math.Mod(h, 360.0)
	if h < 0 {
		h += 360.0
	}
	return h
}

// HeadingDifference returns the minimum angular difference between two
// headings, always in the range [0, 180]
func HeadingDifference(a, b float64) float64 {
	d := math.Abs(NormalizeHeading(a) - NormalizeHeading(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// IsHeadingBetween reports whether heading h lies within the arc swept
// clockwise from lo to hi, handling the wrap at 0/360. The lower bound is
// inclusive and the upper bound exclusive, which lets adjacent arcs tile
// the circle without overlap.
func IsHeadingBetween(h, lo, hi float64) bool {
	h = NormalizeHeading(h)
	lo = NormalizeHeading(lo)
	hi = NormalizeHeading(hi)

	if lo == hi {
		return h == lo
	}
	if lo < hi {
		return h >= lo && h < hi
	}
	// Arc wraps through north
	return h >= lo || h < hi
}
