package geo

import (
	"errors"
	"fmt"
)

// Beyond is returned by Classify for distances past the outermost zone.
const Beyond = "beyond"

// ErrInvalidZones is returned when a zone list breaks its ordering rules.
var ErrInvalidZones = errors.New("invalid zones")

// Zone is one concentric band around the watch point.
type Zone struct {
	Name         string  `json:"name" yaml:"name" validate:"required"`
	RadiusMeters float64 `json:"radiusMeters" yaml:"radius_meters" validate:"gt=0"`
}

// Zones is an ordered list of zones with strictly increasing radii.
// The last zone is the notification boundary.
type Zones []Zone

// DefaultZones returns the three standard tiers: 1, 2 and 3 km.
func DefaultZones() Zones {
	return Zones{
		{Name: "zone1", RadiusMeters: 1000},
		{Name: "zone2", RadiusMeters: 2000},
		{Name: "zone3", RadiusMeters: 3000},
	}
}

// Validate checks that radii are positive and strictly increasing.
func (z Zones) Validate() error {
	if len(z) == 0 {
		return fmt.Errorf("%w: at least one zone is required", ErrInvalidZones)
	}
	prev := 0.0
	for i, zone := range z {
		if zone.Name == "" {
			return fmt.Errorf("%w: zone %d has no name", ErrInvalidZones, i)
		}
		if zone.RadiusMeters <= 0 {
			return fmt.Errorf("%w: zone %q radius must be positive", ErrInvalidZones, zone.Name)
		}
		if i > 0 && zone.RadiusMeters <= prev {
			return fmt.Errorf("%w: zone %q radius %.0f must exceed %.0f", ErrInvalidZones, zone.Name, zone.RadiusMeters, prev)
		}
		prev = zone.RadiusMeters
	}
	return nil
}

// Boundary returns the outermost radius, or 0 for an empty list.
func (z Zones) Boundary() float64 {
	if len(z) == 0 {
		return 0
	}
	return z[len(z)-1].RadiusMeters
}

// Classify returns the first zone whose radius covers distance, or Beyond.
func (z Zones) Classify(distance float64) string {
	for _, zone := range z {
		if distance <= zone.RadiusMeters {
			return zone.Name
		}
	}
	return Beyond
}

// Radius returns the radius of the named zone. ok is false for Beyond and
// unknown names.
func (z Zones) Radius(name string) (float64, bool) {
	for _, zone := range z {
		if zone.Name == name {
			return zone.RadiusMeters, true
		}
	}
	return 0, false
}
