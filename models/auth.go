package models

import (
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	CreatedAt time.Time `json:"created_at"`
}

// SlackIntegration binds a team to an incoming webhook.
type SlackIntegration struct {
	TeamID      string    `json:"team_id"`
	WebhookURL  string    `json:"webhook_url"`
	ChannelName string    `json:"channel_name"`
	CreatedAt   time.Time `json:"created_at"`
}
