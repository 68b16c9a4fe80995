// Package geo provides great-circle distance and zone classification around
// a fixed watch point.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// EarthRadiusMeters is the mean Earth radius used for all distance maths.
const EarthRadiusMeters = 6371000

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the point has finite, in-range coordinates.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the haversine distance between a and b in meters,
// rounded to the nearest meter. NaN coordinates yield NaN.
func Distance(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return math.Round(EarthRadiusMeters * c)
}

// WithinRadius reports whether b lies within radius meters of a.
func WithinRadius(a, b Point, radius float64) bool {
	return Distance(a, b) <= radius
}

// FormatDistance renders meters as "500 m" or "1.5 km".
func FormatDistance(meters float64) string {
	if meters >= 1000 {
		return fmt.Sprintf("%.1f km", meters/1000)
	}
	return fmt.Sprintf("%d m", int(math.Round(meters)))
}

// BoundAround returns the bounding box that encloses a circle of radius
// meters around center. The radius is rescaled because orb measures on a
// larger sphere than Distance does.
func BoundAround(center Point, radius float64) orb.Bound {
	scaled := radius * orb.EarthRadius / EarthRadiusMeters
	return orbgeo.NewBoundAroundPoint(orb.Point{center.Lon, center.Lat}, scaled)
}

// Circle returns a closed ring of segments+1 points approximating the
// circle of radius meters around center.
func Circle(center Point, radius float64, segments int) []Point {
	if segments < 3 {
		segments = 3
	}
	scaled := radius * orb.EarthRadius / EarthRadiusMeters
	origin := orb.Point{center.Lon, center.Lat}

	ring := make([]Point, 0, segments+1)
	for i := 0; i < segments; i++ {
		p := orbgeo.PointAtBearingAndDistance(origin, 360*float64(i)/float64(segments), scaled)
		ring = append(ring, Point{Lat: p.Lat(), Lon: p.Lon()})
	}
	return append(ring, ring[0])
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
