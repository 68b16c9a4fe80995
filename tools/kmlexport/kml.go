package main

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trackship/internal/geo"
	"trackship/internal/storage"
)

// KML structures for XML marshalling.
// These follow the KML 2.2 specification: https://developers.google.com/kml/documentation/kmlreference

// KML is the root element of a KML document.
type KML struct {
	XMLName   xml.Name `xml:"kml"`
	Namespace string   `xml:"xmlns,attr"`
	Document  Document `xml:"Document"`
}

// Document contains the document metadata and features.
type Document struct {
	Name        string      `xml:"name"`
	Description string      `xml:"description,omitempty"`
	Styles      []Style     `xml:"Style,omitempty"`
	Placemarks  []Placemark `xml:"Placemark"`
}

// Style defines the visual appearance of features.
type Style struct {
	ID        string     `xml:"id,attr"`
	IconStyle *IconStyle `xml:"IconStyle,omitempty"`
	LineStyle *LineStyle `xml:"LineStyle,omitempty"`
}

// IconStyle defines how icons are displayed.
type IconStyle struct {
	Scale float64 `xml:"scale,omitempty"`
	Icon  Icon    `xml:"Icon"`
}

// Icon specifies the icon image.
type Icon struct {
	Href string `xml:"href"`
}

// LineStyle defines how zone rings are drawn. Color is aabbggrr.
type LineStyle struct {
	Color string  `xml:"color"`
	Width float64 `xml:"width"`
}

// Placemark is a point or a ring with metadata.
type Placemark struct {
	Name         string        `xml:"name"`
	Description  string        `xml:"description,omitempty"`
	StyleURL     string        `xml:"styleUrl,omitempty"`
	Point        *Point        `xml:"Point,omitempty"`
	LineString   *LineString   `xml:"LineString,omitempty"`
	ExtendedData *ExtendedData `xml:"ExtendedData,omitempty"`
}

// Point represents a geographic location.
type Point struct {
	Coordinates string `xml:"coordinates"` // Format: lon,lat,altitude
}

// LineString is a path of coordinates.
type LineString struct {
	Tessellate  int    `xml:"tessellate"`
	Coordinates string `xml:"coordinates"`
}

// ExtendedData holds custom data associated with a placemark.
type ExtendedData struct {
	Data []Data `xml:"Data"`
}

// Data represents a single piece of extended data.
type Data struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

const ringSegments = 72

func coords(p geo.Point) string {
	return fmt.Sprintf("%.6f,%.6f,0", p.Lon, p.Lat)
}

// generateKML draws the watch point, one ring per zone and a placemark per
// logged arrival.
func generateKML(watch geo.Point, zones geo.Zones, records []storage.DispatchRecord, generated time.Time) KML {
	placemarks := []Placemark{{
		Name:     "Watch point",
		StyleURL: "#watchStyle",
		Point:    &Point{Coordinates: coords(watch)},
	}}

	for _, z := range zones {
		ring := geo.Circle(watch, z.RadiusMeters, ringSegments)
		parts := make([]string, len(ring))
		for i, p := range ring {
			parts[i] = coords(p)
		}
		placemarks = append(placemarks, Placemark{
			Name:        z.Name,
			Description: geo.FormatDistance(z.RadiusMeters),
			StyleURL:    "#zoneStyle",
			LineString:  &LineString{Tessellate: 1, Coordinates: strings.Join(parts, " ")},
		})
	}

	for _, r := range records {
		name := r.Name
		if name == "" {
			name = r.Identity
		}
		placemarks = append(placemarks, Placemark{
			Name: name,
			Description: fmt.Sprintf(
				"Arrived: %s\nZone: %s at %s\nNotified: %d sent, %d errors",
				r.DispatchedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
				r.Zone, geo.FormatDistance(r.Distance), r.Sent, r.Errors,
			),
			StyleURL: "#arrivalStyle",
			Point:    &Point{Coordinates: coords(geo.Point{Lat: r.Latitude, Lon: r.Longitude})},
			ExtendedData: &ExtendedData{
				Data: []Data{
					{Name: "identity", Value: r.Identity},
					{Name: "mmsi", Value: r.MMSI},
					{Name: "zone", Value: r.Zone},
					{Name: "distance_m", Value: strconv.FormatFloat(r.Distance, 'f', 0, 64)},
					{Name: "dispatched_at", Value: r.DispatchedAt.UTC().Format(time.RFC3339)},
				},
			},
		})
	}

	return KML{
		Namespace: "http://www.opengis.net/kml/2.2",
		Document: Document{
			Name:        "TrackShip arrivals",
			Description: fmt.Sprintf("%d vessel arrivals around %.6f, %.6f. Generated %s.", len(records), watch.Lat, watch.Lon, generated.Format("2006-01-02 15:04:05")),
			Styles: []Style{
				{ID: "watchStyle", IconStyle: &IconStyle{Scale: 1.1, Icon: Icon{Href: "http://maps.google.com/mapfiles/kml/shapes/star.png"}}},
				{ID: "arrivalStyle", IconStyle: &IconStyle{Scale: 0.9, Icon: Icon{Href: "http://maps.google.com/mapfiles/kml/shapes/ferry.png"}}},
				{ID: "zoneStyle", LineStyle: &LineStyle{Color: "ff0088ff", Width: 2}},
			},
			Placemarks: placemarks,
		},
	}
}
