package ingestion

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

type gdacsRSS struct {
	Channel gdacsChannel `xml:"channel"`
}
type gdacsChannel struct {
	Items []gdacsItem `xml:"item"`
}
type gdacsItem struct {
	Title       string  `xml:"title"`
	Description string  `xml:"description"`
	Link        string  `xml:"link"`
	PubDate     string  `xml:"pubDate"`
	Point       string  `xml:"http://www.georss.org/georss point"` // "lat lon"
	EventType   string  `xml:"http://www.gdacs.org eventtype"`
	AlertLevel  string  `xml:"http://www.gdacs.org alertlevel"`
	EventID     string  `xml:"http://www.gdacs.org eventid"`
	Severity    float64 `xml:"http://www.gdacs.org severity"`
	Country     string  `xml:"http://www.gdacs.org country"`
}

func parseGDACS(r io.Reader) ([]*models.EmergencyEvent, error) {
	var data gdacsRSS
	if err := xml.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding GDACS feed: %w", err)
	}

	events := make([]*models.EmergencyEvent, 0, len(data.Channel.Items))
	for _, item := range data.Channel.Items {
		timestamp, err := time.Parse(time.RFC1123, item.PubDate)
		if err != nil {
			slog.Warn("GDACS timestamp parsing failed", "id", item.EventID, "error", err.Error())
			timestamp = time.Now()
		}

		location := item.Country
		if location == "" {
			location = item.Title
		}

		events = append(events, &models.EmergencyEvent{
			ID:          "gdacs_" + strings.ToUpper(item.EventType) + "_" + item.EventID,
			Type:        mapGDACSEventType(item.EventType),
			Title:       item.Title,
			Description: item.Description,
			Severity:    alertLevelSeverity(item.AlertLevel),
			Location:    location,
			Coordinates: parsePoint(item.Point),
			Timestamp:   timestamp,
			SourceData: map[string]any{
				"source":        sourceGDACS,
				"eventType":     strings.ToUpper(item.EventType),
				"alertLevel":    strings.ToLower(item.AlertLevel),
				"gdacsSeverity": item.Severity,
				"country":       item.Country,
				"url":           item.Link,
			},
		})
	}

	return events, nil
}

func parsePoint(point string) *models.Coordinates {
	fields := strings.Fields(point)
	if len(fields) != 2 {
		return nil
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil
	}
	return &models.Coordinates{Latitude: lat, Longitude: lon}
}

func mapGDACSEventType(eventType string) models.EventType {
	switch strings.ToUpper(eventType) {
	case "EQ":
		return models.EventTypeEarthquake
	case "WF":
		return models.EventTypeWildfire
	default:
		return models.EventTypeDisaster
	}
}

func alertLevelSeverity(level string) models.Severity {
	switch strings.ToLower(level) {
	case "red":
		return models.SeverityCritical
	case "orange":
		return models.SeverityHigh
	case "green":
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}
