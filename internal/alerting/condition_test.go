package alerting

import (
	"testing"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

func TestEvaluate(t *testing.T) {
	threshold := 4.5
	event := &models.EmergencyEvent{
		ID:          "ev_1",
		Type:        models.EventTypeEarthquake,
		Title:       "M 6.1 - Central California",
		Description: "Strong SHAKING expected",
		Severity:    models.SeverityCritical,
		State:       "CA",
		Coordinates: &models.Coordinates{Latitude: 36.1, Longitude: -120.2},
		Timestamp:   time.Now(),
		SourceData: map[string]any{
			"magnitude": 6.1,
			"depth":     "12.5",
			"network":   "ci",
			"tsunami":   0,
			"nested":    map[string]any{"level": "red"},
		},
	}

	tests := []struct {
		name string
		cond models.AlertCondition
		want bool
	}{
		{"equals string", models.AlertCondition{Field: "severity", Operator: models.OperatorEquals, Value: "critical"}, true},
		{"equals is case sensitive", models.AlertCondition{Field: "severity", Operator: models.OperatorEquals, Value: "CRITICAL"}, false},
		{"equals across numeric types", models.AlertCondition{Field: "sourceData.tsunami", Operator: models.OperatorEquals, Value: 0.0}, true},
		{"equals number vs string", models.AlertCondition{Field: "sourceData.magnitude", Operator: models.OperatorEquals, Value: "6.1"}, false},
		{"contains ignores case", models.AlertCondition{Field: "description", Operator: models.OperatorContains, Value: "shaking"}, true},
		{"contains stringifies numbers", models.AlertCondition{Field: "sourceData.magnitude", Operator: models.OperatorContains, Value: "6."}, true},
		{"contains miss", models.AlertCondition{Field: "title", Operator: models.OperatorContains, Value: "oregon"}, false},
		{"greater_than nested", models.AlertCondition{Field: "sourceData.magnitude", Operator: models.OperatorGreaterThan, Value: 5.0}, true},
		{"greater_than not met", models.AlertCondition{Field: "sourceData.magnitude", Operator: models.OperatorGreaterThan, Value: 7}, false},
		{"greater_than numeric string field", models.AlertCondition{Field: "sourceData.depth", Operator: models.OperatorGreaterThan, Value: 10}, true},
		{"greater_than uses threshold when value absent", models.AlertCondition{Field: "sourceData.magnitude", Operator: models.OperatorGreaterThan, Threshold: &threshold}, true},
		{"less_than", models.AlertCondition{Field: "sourceData.magnitude", Operator: models.OperatorLessThan, Value: "7.5"}, true},
		{"less_than non numeric field fails closed", models.AlertCondition{Field: "sourceData.network", Operator: models.OperatorLessThan, Value: 100}, false},
		{"greater_than non numeric value fails closed", models.AlertCondition{Field: "sourceData.magnitude", Operator: models.OperatorGreaterThan, Value: "big"}, false},
		{"deep path", models.AlertCondition{Field: "sourceData.nested.level", Operator: models.OperatorEquals, Value: "red"}, true},
		{"coordinates path", models.AlertCondition{Field: "coordinates.lat", Operator: models.OperatorGreaterThan, Value: 36}, true},
		{"missing nested field", models.AlertCondition{Field: "sourceData.felt", Operator: models.OperatorEquals, Value: nil}, false},
		{"path through scalar", models.AlertCondition{Field: "sourceData.network.code", Operator: models.OperatorEquals, Value: "ci"}, false},
		{"unknown top-level field", models.AlertCondition{Field: "magnitude", Operator: models.OperatorGreaterThan, Value: 1}, false},
		{"unknown operator", models.AlertCondition{Field: "severity", Operator: "matches", Value: "critical"}, false},
		{"in_area always true", models.AlertCondition{Field: "coordinates", Operator: models.OperatorInArea, Value: "anything"}, true},
		{"empty field", models.AlertCondition{Field: "", Operator: models.OperatorEquals, Value: ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.cond, event); got != tt.want {
				t.Errorf("Evaluate(%+v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestEvaluate_NestedPathMissingSourceData(t *testing.T) {
	cond := models.AlertCondition{Field: "sourceData.magnitude", Operator: models.OperatorGreaterThan, Value: 5.0}

	if !Evaluate(cond, &models.EmergencyEvent{SourceData: map[string]any{"magnitude": 6.1}}) {
		t.Error("expected magnitude 6.1 > 5.0 to match")
	}
	if Evaluate(cond, &models.EmergencyEvent{SourceData: map[string]any{}}) {
		t.Error("expected empty sourceData to fail closed")
	}
	if Evaluate(cond, &models.EmergencyEvent{}) {
		t.Error("expected nil sourceData to fail closed")
	}
}

func TestEvaluateAll(t *testing.T) {
	event := &models.EmergencyEvent{Severity: models.SeverityHigh, Title: "Red flag warning"}

	if !EvaluateAll(nil, event) {
		t.Error("empty condition list should match")
	}

	conds := []models.AlertCondition{
		{Field: "severity", Operator: models.OperatorEquals, Value: "high"},
		{Field: "title", Operator: models.OperatorContains, Value: "red flag"},
	}
	if !EvaluateAll(conds, event) {
		t.Error("expected all conditions to match")
	}

	conds = append(conds, models.AlertCondition{Field: "state", Operator: models.OperatorEquals, Value: "CA"})
	if EvaluateAll(conds, event) {
		t.Error("expected AND semantics to reject when one condition fails")
	}
}

func TestEvaluate_NilEvent(t *testing.T) {
	if Evaluate(models.AlertCondition{Field: "severity", Operator: models.OperatorEquals, Value: "low"}, nil) {
		t.Error("nil event should never match")
	}
}
