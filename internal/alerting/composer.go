package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

const (
	timestampLayout = "Jan 2, 2006 at 3:04 PM MST"
	signature       = "Sent by the Emergency Alert System. Manage your alert rules to change what you receive."
)

type Composer struct {
	loc *time.Location
}

func NewComposer(loc *time.Location) *Composer {
	if loc == nil {
		loc = time.Local
	}
	return &Composer{loc: loc}
}

// Compose renders the title and body for a matched rule. The description is
// never truncated; channel adapters own length limits.
func (c *Composer) Compose(rule *models.AlertRule, event *models.EmergencyEvent) (string, string) {
	title := fmt.Sprintf("%s: %s", strings.ToUpper(string(event.Type)), event.Title)

	location := event.Location
	if location == "" {
		location = "Unknown location"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Location: %s\n", location)
	fmt.Fprintf(&b, "Severity: %s\n", strings.ToUpper(string(event.Severity)))
	fmt.Fprintf(&b, "Time: %s\n", event.Timestamp.In(c.loc).Format(timestampLayout))
	b.WriteString("\n")
	b.WriteString(event.Description)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Alert rule: %s\n", rule.Name)
	b.WriteString("\n")
	b.WriteString(signature)

	return title, b.String()
}
