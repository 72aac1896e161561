package config

import "os"

type Features struct {
	AuthEnabled  bool
	EmailEnabled bool
	SlackEnabled bool
}

// LoadFeatures reads the feature flags. Auth is opt-in; email and Slack are
// on unless switched off explicitly.
func LoadFeatures() Features {
	return Features{
		AuthEnabled:  os.Getenv("AUTH_ENABLED") == "true",
		EmailEnabled: os.Getenv("EMAIL_ENABLED") != "false",
		SlackEnabled: os.Getenv("SLACK_ENABLED") != "false",
	}
}
