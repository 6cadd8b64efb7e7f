package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

// discordMaxContent is the message length limit of a Discord webhook.
const discordMaxContent = 2000

type DiscordNotifier struct {
	WebhookURL string

	client *resty.Client
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		WebhookURL: webhookURL,
		client:     resty.New().SetTimeout(10 * time.Second),
	}
}

// NewDiscordNotifiers mirrors to every webhook in urls. It returns nil when
// urls holds no usable entry.
func NewDiscordNotifiers(urls []string) Notifier {
	var m Multi

	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			m = append(m, NewDiscordNotifier(u))
		}
	}

	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	default:
		return m
	}
}

func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	content = truncateRunes(content, discordMaxContent)

	client := d.client
	if client == nil {
		client = resty.New()
	}

	resp, err := client.R().
		SetContext(ctx).
		SetBody(map[string]string{"content": content}).
		Post(d.WebhookURL)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode())
	}

	return nil
}

// truncateRunes cuts s to at most limit characters without splitting one.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}

	return s
}
