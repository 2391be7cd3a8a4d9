package models

import "time"

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySent || s == DeliveryFailed
}

// AlertDelivery is one ledger row per (rule, event, channel) dispatch attempt.
type AlertDelivery struct {
	ID             string             `json:"id"`
	AlertRuleID    string             `json:"alertRuleId"`
	UserID         string             `json:"userId"`
	Title          string             `json:"title"`
	Message        string             `json:"message"`
	Severity       Severity           `json:"severity"`
	AlertType      EventType          `json:"alertType"`
	SourceData     map[string]any     `json:"sourceData,omitempty"`
	Location       string             `json:"location"`
	Coordinates    *Coordinates       `json:"coordinates,omitempty"`
	DeliveryMethod NotificationMethod `json:"deliveryMethod"`
	DeliveryStatus DeliveryStatus     `json:"deliveryStatus"`
	CreatedAt      time.Time          `json:"createdAt"`
	DeliveredAt    *time.Time         `json:"deliveredAt,omitempty"`
	ErrorMessage   string             `json:"errorMessage,omitempty"`
}

type NotificationSettings struct {
	UserID         string `json:"userId"`
	EmailEnabled   bool   `json:"emailEnabled"`
	Email          string `json:"email,omitempty"`
	SMSEnabled     bool   `json:"smsEnabled"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	WebhookEnabled bool   `json:"webhookEnabled"`
}

// DefaultSettings is what a user gets before saving preferences: email only.
func DefaultSettings(userID, email string) *NotificationSettings {
	return &NotificationSettings{
		UserID:       userID,
		EmailEnabled: true,
		Email:        email,
	}
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
