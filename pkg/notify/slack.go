package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Slack posts the digest headline to an incoming webhook.
type Slack struct {
	client     *http.Client
	webhookURL string
}

// NewSlack creates a new Slack notifier.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, d *Digest) error {
	blocks := []map[string]any{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": d.Subject()},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Items:* %d | *Papers:* %d | *Repositories:* %d",
					d.Stats.TotalItems, d.Stats.Sources["paper"], d.Stats.Sources["repository"]),
			},
		},
	}

	if len(d.Top) > 0 {
		var elements []map[string]any
		for _, h := range d.Top {
			elements = append(elements, map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("<%s|%s> %.2f [%s]", h.URL, h.Title, h.Score, h.Source),
			})
		}
		blocks = append(blocks, map[string]any{"type": "context", "elements": elements})
	}

	return postJSON(ctx, s.client, s.webhookURL, map[string]any{"blocks": blocks}, nil)
}

// postJSON sends payload and expects a 2xx reply.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, sign func([]byte) map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "autodigest/1.0")
	if sign != nil {
		for k, v := range sign(body) {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
