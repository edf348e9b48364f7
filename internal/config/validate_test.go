package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/Johnnenna2/weekly-news/internal/domain"
)

func validConfig() Config {
	return Config{
		Credentials: domain.Credentials{
			WebhookURL: "https://discord.com/api/webhooks/1/a",
			AIAPIKey:   "sk-abc",
			NewsAPIKey: "news-xyz",
		},
		Schedule:        DefaultSchedule,
		Timezone:        DefaultTimezone,
		ScriptCommand:   []string{"python3", "main.py"},
		TickIntervalStr: "30s",
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate returned error for valid config: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing webhook url", func(c *Config) { c.Credentials.WebhookURL = "" }, "DISCORD_WEBHOOK_URL"},
		{"missing ai key", func(c *Config) { c.Credentials.AIAPIKey = "" }, "OPENAI_API_KEY"},
		{"missing news key", func(c *Config) { c.Credentials.NewsAPIKey = "" }, "NEWS_API_KEY"},
		{"bad schedule", func(c *Config) { c.Schedule = "not a cron" }, "SCHEDULE"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "TIMEZONE"},
		{"empty script command", func(c *Config) { c.ScriptCommand = nil }, "SCRIPT_COMMAND"},
		{"bad tick interval", func(c *Config) { c.TickIntervalStr = "soon" }, "TICK_INTERVAL"},
		{"zero tick interval", func(c *Config) { c.TickIntervalStr = "0s" }, "TICK_INTERVAL"},
		{"negative script timeout", func(c *Config) { c.ScriptTimeout = -1 }, "SCRIPT_TIMEOUT"},
		{"leader without database", func(c *Config) { c.LeaderEnabled = true }, "LEADER_ELECTION_ENABLED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate should return an error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should mention field %s", err, tt.field)
			}
		})
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Credentials = domain.Credentials{}
	cfg.Schedule = "bogus"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate should return an error")
	}

	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(errs) != 4 {
		t.Errorf("expected 4 errors (3 credentials + schedule), got %d: %v", len(errs), errs)
	}
}
