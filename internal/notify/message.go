package notify

import (
	"fmt"
	"time"

	"trackship/internal/geo"
	"trackship/internal/state"
)

// Message is a rendered notification.
type Message struct {
	Title    string
	Body     string
	Metadata map[string]any
}

// ArrivalMessage renders the notification for a vessel entering the area.
func ArrivalMessage(v state.Vessel, at time.Time) Message {
	name := v.Name
	if name == "" || name == "Unknown" {
		name = "Navire inconnu"
	}

	ship := map[string]any{
		"identity": v.Identity,
		"mmsi":     v.MMSI,
		"name":     v.Name,
		"lat":      v.Position.Lat,
		"lon":      v.Position.Lon,
		"course":   v.Course,
		"speed":    v.Speed,
	}
	if v.Heading != nil {
		ship["heading"] = *v.Heading
	}

	return Message{
		Title: "🚢 Nouveau navire détecté !",
		Body:  fmt.Sprintf("%s est à %.1fkm de votre position", name, v.Distance/1000),
		Metadata: map[string]any{
			"type":      "ship_detected",
			"ship":      ship,
			"zone":      v.Zone,
			"distance":  v.Distance,
			"timestamp": at.UTC().Format(time.RFC3339),
		},
	}
}

// ConfirmationMessage is sent once when a device registers.
func ConfirmationMessage(boundary float64) Message {
	return Message{
		Title: "TrackShip activé",
		Body:  fmt.Sprintf("Vous recevrez des notifications quand un navire entre dans la zone de %s", geo.FormatDistance(boundary)),
		Metadata: map[string]any{
			"type": "registration_confirmation",
		},
	}
}
