// rule-check reports whether a stored alert rule would trigger for an event,
// without sending anything or touching the delivery ledger.
//
//	rule-check -rule quake_ca -event event.json
//	rule-check -rules rules.yaml -rule quake_ca -event - < event.json
//
// Exit status is 0 when the rule would fire, 1 when it would not and 2 on error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-emergency-alerts/internal/alerting"
	"github.com/mr1hm/go-emergency-alerts/internal/channel"
	"github.com/mr1hm/go-emergency-alerts/internal/config"
	"github.com/mr1hm/go-emergency-alerts/internal/logging"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
	"github.com/mr1hm/go-emergency-alerts/internal/repository"
	"github.com/mr1hm/go-emergency-alerts/internal/rules"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("rule-check", flag.ContinueOnError)
	ruleID := fs.String("rule", "", "id of the rule to check (required)")
	eventPath := fs.String("event", "", "event JSON file, or - for stdin (required)")
	rulesPath := fs.String("rules", "", "check against this rules file in a scratch database instead of DB_PATH")
	dbPath := fs.String("db", "", "database path (defaults to DB_PATH)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *ruleID == "" || *eventPath == "" {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	logging.Setup(cfg.Logging.Level, "rule-check")

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("invalid timezone", "error", err)
		return 2
	}

	event, err := readEvent(*eventPath, stdin)
	if err != nil {
		slog.Error("failed to read event", "path", *eventPath, "error", err)
		return 2
	}

	path := cfg.DB.Path
	if *dbPath != "" {
		path = *dbPath
	}
	if *rulesPath != "" {
		path = ":memory:"
	}
	db, err := repository.NewSQLiteDB(path)
	if err != nil {
		slog.Error("failed to open database", "path", path, "error", err)
		return 2
	}
	defer db.Close()

	ctx := context.Background()
	if *rulesPath != "" {
		f, err := rules.Load(*rulesPath)
		if err != nil {
			slog.Error("failed to load rules", "error", err)
			return 2
		}
		if err := rules.Sync(ctx, db, f, nil); err != nil {
			slog.Error("failed to sync rules", "error", err)
			return 2
		}
	}

	engine := alerting.NewEngine(db, channel.NewRegistry(), alerting.Options{Location: loc})
	d, err := engine.DryRun(ctx, *ruleID, event)
	if err != nil {
		slog.Error("dry run failed", "rule_id", *ruleID, "error", err)
		return 2
	}

	out := json.NewEncoder(stdout)
	out.SetIndent("", "  ")
	out.Encode(struct {
		RuleID  string `json:"ruleId"`
		EventID string `json:"eventId"`
		alerting.Decision
	}{*ruleID, event.ID, d})

	if !d.Admitted {
		return 1
	}
	return 0
}

func readEvent(path string, stdin io.Reader) (*models.EmergencyEvent, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var event models.EmergencyEvent
	if err := json.NewDecoder(r).Decode(&event); err != nil {
		return nil, fmt.Errorf("error decoding event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("event type is required")
	}
	return &event, nil
}
