package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type DiscordConfig struct {
	WebhookURL string        `json:"webhook_url" yaml:"webhook_url" validate:"omitempty,url"`
	Username   string        `json:"username" yaml:"username"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// Discord posts plain-content messages to a webhook.
type Discord struct {
	url      string
	username string
	client   *http.Client
}

func NewDiscord(cfg DiscordConfig) *Discord {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Discord{
		url:      cfg.WebhookURL,
		username: cfg.Username,
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *Discord) Notify(ctx context.Context, msg string) error {
	if d.url == "" {
		return nil
	}

	payload := map[string]string{"content": msg}
	if d.username != "" {
		payload["username"] = d.username
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("notify: discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: discord post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: discord returned status %d", resp.StatusCode)
	}
	return nil
}
