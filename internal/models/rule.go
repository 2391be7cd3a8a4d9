package models

type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorInArea      Operator = "in_area"
)

type NotificationMethod string

const (
	MethodEmail   NotificationMethod = "email"
	MethodSMS     NotificationMethod = "sms"
	MethodWebhook NotificationMethod = "webhook"
)

type AlertCondition struct {
	Field     string   `json:"field" yaml:"field"`         // dotted path, e.g. "sourceData.magnitude"
	Operator  Operator `json:"operator" yaml:"operator"`
	Value     any      `json:"value" yaml:"value"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// AlertRule is user-owned configuration. The engine only ever reads it.
type AlertRule struct {
	ID                  string               `json:"id"`
	UserID              string               `json:"userId"`
	Name                string               `json:"name"`
	AlertType           EventType            `json:"alertType"`
	Conditions          []AlertCondition     `json:"conditions"`
	States              []string             `json:"states"` // empty = no geographic restriction
	CooldownMinutes     int                  `json:"cooldownMinutes"`
	MaxAlertsPerDay     int                  `json:"maxAlertsPerDay"`
	NotificationMethods []NotificationMethod `json:"notificationMethods"`
	WebhookURL          string               `json:"webhookUrl,omitempty"`
	IsActive            bool                 `json:"isActive"`
}
