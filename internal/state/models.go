package state

import (
	"time"

	"trackship/internal/geo"
)

// Vessel is the canonical record for a vessel observed inside the watch area.
type Vessel struct {
	Identity  string    `json:"identity"` // Tracking key: track ID or MMSI, see source.IdentityKey.
	MMSI      string    `json:"mmsi,omitempty"`
	TrackID   string    `json:"trackId,omitempty"`
	Name      string    `json:"name"`
	Position  geo.Point `json:"position"`
	Course    float64   `json:"course"`
	Speed     float64   `json:"speed"`
	Heading   *float64  `json:"heading,omitempty"`
	ShipType  string    `json:"shipType,omitempty"`
	Length    float64   `json:"length,omitempty"`
	Width     float64   `json:"width,omitempty"`
	Timestamp time.Time `json:"timestamp"` // Position time reported upstream.
	Distance  float64   `json:"distance"`  // Meters from the watch point.
	Zone      string    `json:"zone,omitempty"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// refresh copies the mutable observation fields of obs onto v.
// Identity and FirstSeen are left alone.
func (v *Vessel) refresh(obs Vessel) {
	if obs.Name != "" {
		v.Name = obs.Name
	}
	if obs.MMSI != "" {
		v.MMSI = obs.MMSI
	}
	if obs.TrackID != "" {
		v.TrackID = obs.TrackID
	}
	v.Position = obs.Position
	v.Course = obs.Course
	v.Speed = obs.Speed
	v.Heading = obs.Heading
	if obs.ShipType != "" {
		v.ShipType = obs.ShipType
	}
	if obs.Length != 0 {
		v.Length = obs.Length
	}
	if obs.Width != 0 {
		v.Width = obs.Width
	}
	v.Timestamp = obs.Timestamp
	v.Distance = obs.Distance
	v.Zone = obs.Zone
}

// KnownVessel is the diagnostic view of a tracked vessel.
type KnownVessel struct {
	Identity  string    `json:"identity"`
	Name      string    `json:"name"`
	Distance  float64   `json:"distance"`
	Zone      string    `json:"zone,omitempty"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// Known returns the diagnostic view of v.
func (v Vessel) Known() KnownVessel {
	return KnownVessel{
		Identity:  v.Identity,
		Name:      v.Name,
		Distance:  v.Distance,
		Zone:      v.Zone,
		FirstSeen: v.FirstSeen,
		LastSeen:  v.LastSeen,
	}
}
