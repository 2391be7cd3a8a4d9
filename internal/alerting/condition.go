package alerting

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

// Evaluate reports whether a single condition holds for event.
//
// A missing field or an unknown operator evaluates to false. Numeric
// operators coerce both sides; anything that does not parse as a number is
// NaN and never satisfies the comparison.
//
// in_area is not implemented and always returns true. No geofence is
// applied for it.
func Evaluate(cond models.AlertCondition, event *models.EmergencyEvent) bool {
	if event == nil {
		return false
	}

	if cond.Operator == models.OperatorInArea {
		return true
	}

	actual, ok := resolveField(event, cond.Field)
	if !ok {
		return false
	}

	switch cond.Operator {
	case models.OperatorEquals:
		return valuesEqual(actual, cond.Value)
	case models.OperatorContains:
		if cond.Value == nil {
			return false
		}
		return strings.Contains(strings.ToLower(stringify(actual)), strings.ToLower(stringify(cond.Value)))
	case models.OperatorGreaterThan:
		return toNumber(actual) > compareOperand(cond)
	case models.OperatorLessThan:
		return toNumber(actual) < compareOperand(cond)
	default:
		return false
	}
}

// EvaluateAll is the logical AND of every condition; an empty list matches.
func EvaluateAll(conds []models.AlertCondition, event *models.EmergencyEvent) bool {
	for _, c := range conds {
		if !Evaluate(c, event) {
			return false
		}
	}
	return true
}

// resolveField reads a top-level attribute, or walks a dotted path through
// nested maps ("sourceData.magnitude").
func resolveField(event *models.EmergencyEvent, field string) (any, bool) {
	if field == "" {
		return nil, false
	}
	if !strings.Contains(field, ".") {
		return event.Field(field)
	}

	segments := strings.Split(field, ".")
	current, ok := event.Field(segments[0])
	if !ok {
		return nil, false
	}
	for _, seg := range segments[1:] {
		m, isMap := asMap(current)
		if !isMap {
			return nil, false
		}
		current, ok = m[seg]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func compareOperand(cond models.AlertCondition) float64 {
	if cond.Value == nil && cond.Threshold != nil {
		return *cond.Threshold
	}
	return toNumber(cond.Value)
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aNum := numeric(a)
	bf, bNum := numeric(b)
	if aNum && bNum {
		return af == bf
	}
	if aNum != bNum {
		return false
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return as == bs
	}
	return reflect.DeepEqual(a, b)
}

// numeric reports the float value of Go numeric kinds only; strings are not
// numbers for equality.
func numeric(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

func toNumber(v any) float64 {
	if f, ok := numeric(v); ok {
		return f
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return f
		}
	}
	return math.NaN()
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
