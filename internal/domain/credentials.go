package domain

import "fmt"

// Environment variable names the script reads its secrets from.
// Fixed by the script contract; do not rename.
const (
	EnvWebhookURL = "DISCORD_WEBHOOK_URL"
	EnvAIAPIKey   = "OPENAI_API_KEY"
	EnvNewsAPIKey = "NEWS_API_KEY"
)

// Credentials holds the three secrets the script requires. They are passed
// explicitly into the run rather than read from process-wide env state, and
// reach the script only as environment variables, never as arguments.
type Credentials struct {
	WebhookURL string
	AIAPIKey   string
	NewsAPIKey string
}

// Validate returns a ConfigurationFailure naming the first missing secret.
// All three are required; an empty value fails the run before any external
// call is made.
func (c Credentials) Validate() error {
	for _, v := range []struct {
		name  string
		value string
	}{
		{EnvWebhookURL, c.WebhookURL},
		{EnvAIAPIKey, c.AIAPIKey},
		{EnvNewsAPIKey, c.NewsAPIKey},
	} {
		if v.value == "" {
			return &Failure{
				Kind: FailureConfiguration,
				Err:  fmt.Errorf("required credential %s is missing or empty", v.name),
			}
		}
	}
	return nil
}

// Env returns the credentials as KEY=value pairs for the child process
// environment.
func (c Credentials) Env() []string {
	return []string{
		EnvWebhookURL + "=" + c.WebhookURL,
		EnvAIAPIKey + "=" + c.AIAPIKey,
		EnvNewsAPIKey + "=" + c.NewsAPIKey,
	}
}
