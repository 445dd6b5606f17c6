package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord posts the digest as a webhook embed.
type Discord struct {
	client     *http.Client
	webhookURL string
	now        func() time.Time
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
		now:        time.Now,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, dg *Digest) error {
	var links []string
	for _, h := range dg.Top {
		links = append(links, fmt.Sprintf("• [%s](%s) **%.2f** [%s]", h.Title, h.URL, h.Score, h.Source))
	}

	embed := map[string]any{
		"title": dg.Subject(),
		"description": fmt.Sprintf("**Items:** %d\n\n%s",
			dg.Stats.TotalItems, strings.Join(links, "\n")),
		"color":     0x007ACC,
		"timestamp": d.now().UTC().Format(time.RFC3339),
	}

	return postJSON(ctx, d.client, d.webhookURL, map[string]any{"embeds": []map[string]any{embed}}, nil)
}
