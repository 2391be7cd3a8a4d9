package ingestion

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

// National Weather Service active alerts, GeoJSON flavour of CAP.
type nwsResponse struct {
	Features []nwsFeature `json:"features"`
}

type nwsFeature struct {
	ID         string        `json:"id"`
	Properties nwsProperties `json:"properties"`
	Geometry   *nwsGeometry  `json:"geometry"`
}

type nwsProperties struct {
	ID          string `json:"id"`
	Event       string `json:"event"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
	Severity    string `json:"severity"` // Extreme, Severe, Moderate, Minor, Unknown
	Urgency     string `json:"urgency"`
	Certainty   string `json:"certainty"`
	AreaDesc    string `json:"areaDesc"`
	Sent        string `json:"sent"`
	SenderName  string `json:"senderName"`
	Geocode     struct {
		UGC []string `json:"UGC"`
	} `json:"geocode"`
}

type nwsGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func parseNWS(r io.Reader) ([]*models.EmergencyEvent, error) {
	var data nwsResponse
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding NWS feed: %w", err)
	}

	events := make([]*models.EmergencyEvent, 0, len(data.Features))
	for _, f := range data.Features {
		p := f.Properties
		id := p.ID
		if id == "" {
			id = f.ID
		}

		timestamp, err := time.Parse(time.RFC3339, p.Sent)
		if err != nil {
			timestamp = time.Now()
		}

		title := p.Headline
		if title == "" {
			title = p.Event
		}

		description := p.Description
		if p.Instruction != "" {
			description += "\n\n" + p.Instruction
		}

		events = append(events, &models.EmergencyEvent{
			ID:          "nws_" + id,
			Type:        nwsEventType(p.Event),
			Title:       title,
			Description: description,
			Severity:    nwsSeverity(p.Severity),
			Location:    p.AreaDesc,
			State:       stateFromUGC(p.Geocode.UGC),
			Coordinates: polygonCentroid(f.Geometry),
			Timestamp:   timestamp,
			SourceData: map[string]any{
				"source":    sourceNWS,
				"event":     p.Event,
				"urgency":   p.Urgency,
				"certainty": p.Certainty,
				"sender":    p.SenderName,
				"nwsLevel":  p.Severity,
				"states":    statesFromUGC(p.Geocode.UGC),
			},
		})
	}

	return events, nil
}

// nwsEventType routes fire and smoke products to their own rule types; the
// rest is weather.
func nwsEventType(event string) models.EventType {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "fire"):
		return models.EventTypeWildfire
	case strings.Contains(e, "air quality"), strings.Contains(e, "smoke"):
		return models.EventTypeAirQuality
	case strings.Contains(e, "earthquake"):
		return models.EventTypeEarthquake
	default:
		return models.EventTypeWeather
	}
}

func nwsSeverity(s string) models.Severity {
	switch strings.ToLower(s) {
	case "extreme":
		return models.SeverityCritical
	case "severe":
		return models.SeverityHigh
	case "moderate":
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// polygonCentroid averages the outer ring's vertices. Good enough for a map
// pin; alerts without geometry get no coordinates.
func polygonCentroid(g *nwsGeometry) *models.Coordinates {
	if g == nil || g.Type != "Polygon" {
		return nil
	}
	var rings [][][]float64
	if err := json.Unmarshal(g.Coordinates, &rings); err != nil || len(rings) == 0 || len(rings[0]) == 0 {
		return nil
	}

	var lat, lng float64
	var n int
	for _, pt := range rings[0] {
		if len(pt) < 2 {
			continue
		}
		lng += pt[0]
		lat += pt[1]
		n++
	}
	if n == 0 {
		return nil
	}
	return &models.Coordinates{Latitude: lat / float64(n), Longitude: lng / float64(n)}
}
