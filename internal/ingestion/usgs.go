package ingestion

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}
type usgsProperties struct {
	Mag     float64 `json:"mag"`
	Place   string  `json:"place"`
	Time    int64   `json:"time"` // unix millis
	Title   string  `json:"title"`
	Tsunami int     `json:"tsunami"` // 0 or 1
	URL     string  `json:"url"`
	Alert   string  `json:"alert"` // PAGER level, often empty
}
type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

func parseUSGS(r io.Reader) ([]*models.EmergencyEvent, error) {
	var data usgsResponse
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding USGS feed: %w", err)
	}

	events := make([]*models.EmergencyEvent, 0, len(data.Features))
	for _, f := range data.Features {
		p := f.Properties
		e := &models.EmergencyEvent{
			ID:          "usgs_" + f.ID,
			Type:        models.EventTypeEarthquake,
			Title:       p.Title,
			Description: fmt.Sprintf("Magnitude %.1f earthquake %s.", p.Mag, p.Place),
			Severity:    magnitudeSeverity(p.Mag),
			Location:    p.Place,
			State:       stateFromPlace(p.Place),
			Timestamp:   time.UnixMilli(p.Time),
			SourceData: map[string]any{
				"source":    sourceUSGS,
				"magnitude": p.Mag,
				"tsunami":   p.Tsunami,
				"url":       p.URL,
			},
		}
		if p.Alert != "" {
			e.SourceData["alertLevel"] = p.Alert
		}
		if c := f.Geometry.Coordinates; len(c) >= 2 {
			e.Coordinates = &models.Coordinates{Latitude: c[1], Longitude: c[0]}
			if len(c) >= 3 {
				e.SourceData["depth"] = c[2]
			}
		}
		events = append(events, e)
	}

	return events, nil
}

func magnitudeSeverity(mag float64) models.Severity {
	switch {
	case mag >= 7:
		return models.SeverityCritical
	case mag >= 6:
		return models.SeverityHigh
	case mag >= 4.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
