package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Johnnenna2/weekly-news/internal/domain"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	for _, cred := range []struct {
		field string
		value string
	}{
		{domain.EnvWebhookURL, cfg.Credentials.WebhookURL},
		{domain.EnvAIAPIKey, cfg.Credentials.AIAPIKey},
		{domain.EnvNewsAPIKey, cfg.Credentials.NewsAPIKey},
	} {
		if cred.value == "" {
			errs = append(errs, ValidationError{Field: cred.field, Message: "required"})
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		errs = append(errs, ValidationError{
			Field:   "SCHEDULE",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		errs = append(errs, ValidationError{
			Field:   "TIMEZONE",
			Message: fmt.Sprintf("unknown timezone: %v", err),
		})
	}

	if len(cfg.ScriptCommand) == 0 {
		errs = append(errs, ValidationError{
			Field:   "SCRIPT_COMMAND",
			Message: "must name an executable",
		})
	}

	if cfg.TickIntervalStr != "" {
		d, err := time.ParseDuration(cfg.TickIntervalStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "TICK_INTERVAL",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "TICK_INTERVAL",
				Message: "must be positive",
			})
		}
	}

	if cfg.ScriptTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "SCRIPT_TIMEOUT",
			Message: "must be zero (no deadline) or positive",
		})
	}

	if cfg.LeaderEnabled && cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "LEADER_ELECTION_ENABLED",
			Message: "requires DATABASE_URL",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
