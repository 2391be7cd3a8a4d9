package models

import (
	"strings"
	"time"
)

type EventType string

const (
	EventTypeWeather    EventType = "weather"
	EventTypeWildfire   EventType = "wildfire"
	EventTypeEarthquake EventType = "earthquake"
	EventTypeDisaster   EventType = "disaster"
	EventTypeAirQuality EventType = "air_quality"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities low < medium < high < critical. Unknown values rank 0.
func (s Severity) Rank() int {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// EmergencyEvent is a normalized real-world occurrence emitted by a producer.
// Events are treated as immutable once handed to the engine.
type EmergencyEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Location    string         `json:"location"`
	State       string         `json:"state,omitempty"` // 2-letter US state code
	Coordinates *Coordinates   `json:"coordinates,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	SourceData  map[string]any `json:"sourceData,omitempty"`
}

// Field returns a top-level attribute by its JSON name. Nested values are
// returned in map form so callers can keep walking a dotted path.
func (e *EmergencyEvent) Field(name string) (any, bool) {
	switch name {
	case "id":
		return e.ID, true
	case "type":
		return string(e.Type), true
	case "title":
		return e.Title, true
	case "description":
		return e.Description, true
	case "severity":
		return string(e.Severity), true
	case "location":
		return e.Location, true
	case "state":
		if e.State == "" {
			return nil, false
		}
		return e.State, true
	case "coordinates":
		if e.Coordinates == nil {
			return nil, false
		}
		return map[string]any{
			"lat": e.Coordinates.Latitude,
			"lng": e.Coordinates.Longitude,
		}, true
	case "timestamp":
		return e.Timestamp, true
	case "sourceData":
		if e.SourceData == nil {
			return nil, false
		}
		return e.SourceData, true
	default:
		return nil, false
	}
}
