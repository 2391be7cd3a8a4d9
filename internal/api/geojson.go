package api

import (
	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON maps ledger rows to point features. Rows without coordinates
// keep a null geometry so the listing stays complete.
func toGeoJSON(deliveries []models.AlertDelivery) FeatureCollection {
	features := make([]Feature, 0, len(deliveries))

	for _, d := range deliveries {
		f := Feature{
			Type: "Feature",
			Properties: map[string]any{
				"id":       d.ID,
				"rule_id":  d.AlertRuleID,
				"type":     string(d.AlertType),
				"title":    d.Title,
				"severity": string(d.Severity),
				"location": d.Location,
				"method":   string(d.DeliveryMethod),
				"status":   string(d.DeliveryStatus),
				"created":  d.CreatedAt,
			},
		}
		if d.Coordinates != nil {
			f.Geometry = &Geometry{
				Type:        "Point",
				Coordinates: []float64{d.Coordinates.Longitude, d.Coordinates.Latitude},
			}
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
