package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"uptimedock/db"
)

// Notifier delivers a message to the chat destination of a team.
type Notifier interface {
	Notify(ctx context.Context, teamID, message string) error
}

// SlackNotifier posts to the incoming webhook configured for the team. Teams
// without an integration fall back to DefaultWebhookURL; without that the
// message is dropped.
type SlackNotifier struct {
	Integrations      IntegrationStore
	DefaultWebhookURL string
	Client            *http.Client
}

func NewSlackNotifier(integrations IntegrationStore, defaultWebhookURL string) *SlackNotifier {
	return &SlackNotifier{
		Integrations:      integrations,
		DefaultWebhookURL: defaultWebhookURL,
		Client:            &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) webhookFor(ctx context.Context, teamID string) (string, error) {
	if teamID != "" && s.Integrations != nil {
		webhookURL, err := s.Integrations.FindSlackWebhook(ctx, teamID)
		if err == nil && webhookURL != "" {
			return webhookURL, nil
		}
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return "", err
		}
	}
	return s.DefaultWebhookURL, nil
}

func (s *SlackNotifier) Notify(ctx context.Context, teamID, message string) error {
	webhookURL, err := s.webhookFor(ctx, teamID)
	if err != nil {
		return fmt.Errorf("look up slack webhook for team %s: %w", teamID, err)
	}
	if webhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack API error: status %d", resp.StatusCode)
	}
	return nil
}
