// Package rules loads users, notification settings and alert rules from a
// YAML file and syncs them into the store.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

const (
	defaultCooldownMinutes = 60
	defaultMaxAlertsPerDay = 10
)

type File struct {
	Users []UserEntry `yaml:"users"`
	Rules []RuleEntry `yaml:"rules"`
}

type UserEntry struct {
	ID       string         `yaml:"id"`
	Email    string         `yaml:"email"`
	Settings *SettingsEntry `yaml:"settings"`
}

type SettingsEntry struct {
	EmailEnabled   *bool  `yaml:"emailEnabled"`
	SMSEnabled     bool   `yaml:"smsEnabled"`
	PhoneNumber    string `yaml:"phoneNumber"`
	WebhookEnabled bool   `yaml:"webhookEnabled"`
}

// RuleEntry mirrors models.AlertRule. Pointer fields distinguish "unset"
// from an explicit zero.
type RuleEntry struct {
	ID                  string                      `yaml:"id"`
	UserID              string                      `yaml:"userId"`
	Name                string                      `yaml:"name"`
	AlertType           models.EventType            `yaml:"alertType"`
	Conditions          []models.AlertCondition     `yaml:"conditions"`
	States              []string                    `yaml:"states"`
	CooldownMinutes     *int                        `yaml:"cooldownMinutes"`
	MaxAlertsPerDay     *int                        `yaml:"maxAlertsPerDay"`
	NotificationMethods []models.NotificationMethod `yaml:"notificationMethods"`
	WebhookURL          string                      `yaml:"webhookUrl"`
	IsActive            *bool                       `yaml:"isActive"`
}

var knownTypes = map[models.EventType]bool{
	models.EventTypeWeather:    true,
	models.EventTypeWildfire:   true,
	models.EventTypeEarthquake: true,
	models.EventTypeDisaster:   true,
	models.EventTypeAirQuality: true,
}

var knownOperators = map[models.Operator]bool{
	models.OperatorEquals:      true,
	models.OperatorContains:    true,
	models.OperatorGreaterThan: true,
	models.OperatorLessThan:    true,
	models.OperatorInArea:      true,
}

var knownMethods = map[models.NotificationMethod]bool{
	models.MethodEmail:   true,
	models.MethodSMS:     true,
	models.MethodWebhook: true,
}

// Load reads and validates a rules file. Unknown keys are rejected so typos
// do not silently disable a rule.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading rules file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing rules file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	users := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if users[u.ID] {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		users[u.ID] = true
	}

	ids := make(map[string]bool, len(f.Rules))
	for i, r := range f.Rules {
		if r.ID == "" {
			return fmt.Errorf("rules[%d]: id is required", i)
		}
		if ids[r.ID] {
			return fmt.Errorf("rules[%d]: duplicate id %q", i, r.ID)
		}
		ids[r.ID] = true

		if r.UserID == "" {
			return fmt.Errorf("rule %s: userId is required", r.ID)
		}
		if !knownTypes[r.AlertType] {
			return fmt.Errorf("rule %s: unknown alertType %q", r.ID, r.AlertType)
		}
		for _, m := range r.NotificationMethods {
			if !knownMethods[m] {
				return fmt.Errorf("rule %s: unknown notification method %q", r.ID, m)
			}
		}
		if r.CooldownMinutes != nil && *r.CooldownMinutes < 0 {
			return fmt.Errorf("rule %s: cooldownMinutes must not be negative", r.ID)
		}
		if r.MaxAlertsPerDay != nil && *r.MaxAlertsPerDay < 0 {
			return fmt.Errorf("rule %s: maxAlertsPerDay must not be negative", r.ID)
		}

		// These load but are worth a look: the engine treats them as never
		// matching or never delivering.
		for _, c := range r.Conditions {
			if !knownOperators[c.Operator] {
				slog.Warn("rule condition uses unknown operator and will never match",
					"rule_id", r.ID, "field", c.Field, "operator", c.Operator)
			}
		}
		if !users[r.UserID] {
			slog.Warn("rule owner is not declared in the rules file", "rule_id", r.ID, "user_id", r.UserID)
		}
		if hasMethod(r.NotificationMethods, models.MethodWebhook) && r.WebhookURL == "" {
			slog.Warn("webhook method without webhookUrl", "rule_id", r.ID)
		}
	}
	return nil
}

func hasMethod(methods []models.NotificationMethod, m models.NotificationMethod) bool {
	for _, x := range methods {
		if x == m {
			return true
		}
	}
	return false
}

// AlertRules returns the rules with defaults applied.
func (f *File) AlertRules() []models.AlertRule {
	out := make([]models.AlertRule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rule := models.AlertRule{
			ID:                  r.ID,
			UserID:              r.UserID,
			Name:                r.Name,
			AlertType:           r.AlertType,
			Conditions:          r.Conditions,
			States:              r.States,
			CooldownMinutes:     defaultCooldownMinutes,
			MaxAlertsPerDay:     defaultMaxAlertsPerDay,
			NotificationMethods: r.NotificationMethods,
			WebhookURL:          r.WebhookURL,
			IsActive:            true,
		}
		if r.CooldownMinutes != nil {
			rule.CooldownMinutes = *r.CooldownMinutes
		}
		if r.MaxAlertsPerDay != nil {
			rule.MaxAlertsPerDay = *r.MaxAlertsPerDay
		}
		if r.IsActive != nil {
			rule.IsActive = *r.IsActive
		}
		if len(rule.NotificationMethods) == 0 {
			rule.NotificationMethods = []models.NotificationMethod{models.MethodEmail}
		}
		if rule.Name == "" {
			rule.Name = r.ID
		}
		out = append(out, rule)
	}
	return out
}

// NotificationSettings returns the declared settings for the user, or the
// defaults when no settings block is present.
func (u UserEntry) NotificationSettings() *models.NotificationSettings {
	s := models.DefaultSettings(u.ID, u.Email)
	if u.Settings == nil {
		return s
	}
	if u.Settings.EmailEnabled != nil {
		s.EmailEnabled = *u.Settings.EmailEnabled
	}
	s.SMSEnabled = u.Settings.SMSEnabled
	s.PhoneNumber = u.Settings.PhoneNumber
	s.WebhookEnabled = u.Settings.WebhookEnabled
	return s
}
