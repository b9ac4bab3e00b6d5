package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/shiodome"
	"github.com/alanbriolat/shiodome/internal/metrics"
)

var (
	ErrWebhookRejected = errors.New("webhook rejected notification")
)

const (
	ColorStarted   = 65280
	ColorSucceeded = 9934835
	ColorFailed    = 16711680
)

func (s Status) Color() int {
	switch s {
	case StatusStarted:
		return ColorStarted
	case StatusSucceeded:
		return ColorSucceeded
	case StatusFailed:
		return ColorFailed
	default:
		return 0
	}
}

type DiscordSettings struct {
	Enabled bool
	Webhook string
}

// Discord posts notifications to a Discord webhook. Settings are read per notification, so the webhook can be
// changed or disabled by a config reload.
type Discord struct {
	settings func() DiscordSettings
	client   *http.Client
	log      *zap.SugaredLogger
}

func NewDiscord(settings func() DiscordSettings, client *http.Client) *Discord {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discord{settings: settings, client: client, log: zap.S().Named("discord")}
}

type discordAuthor struct {
	Name    string  `json:"name"`
	URL     string  `json:"url"`
	IconURL *string `json:"icon_url"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordThumbnail struct {
	URL string `json:"url"`
}

type discordEmbed struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Color       int              `json:"color"`
	Author      discordAuthor    `json:"author"`
	Footer      discordFooter    `json:"footer"`
	Thumbnail   discordThumbnail `json:"thumbnail"`
}

type discordPayload struct {
	Content     *string        `json:"content"`
	Embeds      []discordEmbed `json:"embeds"`
	Username    string         `json:"username"`
	Attachments []string       `json:"attachments"`
}

func newDiscordPayload(n Notification) discordPayload {
	var icon *string
	if n.AuthorImageURL != "" {
		icon = &n.AuthorImageURL
	}
	return discordPayload{
		Embeds: []discordEmbed{{
			Title:       n.Status.String(),
			Description: n.Title,
			Color:       n.Status.Color(),
			Author: discordAuthor{
				Name:    n.Subject + " is live!",
				URL:     n.URL,
				IconURL: icon,
			},
			Footer:    discordFooter{Text: "Shiodome " + shiodome.Version},
			Thumbnail: discordThumbnail{URL: n.ThumbnailURL},
		}},
		Username:    "Shiodome",
		Attachments: []string{},
	}
}

func (d *Discord) Notify(ctx context.Context, n Notification) error {
	settings := d.settings()
	if !settings.Enabled || settings.Webhook == "" {
		return nil
	}
	body, err := json.Marshal(newDiscordPayload(n))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.Webhook, bytes.NewReader(body))
	if err != nil {
		metrics.RecordNotification(metrics.OutcomeError)
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		metrics.RecordNotification(metrics.OutcomeError)
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.RecordNotification(metrics.OutcomeRejected)
		return fmt.Errorf("%w: %s: %s", ErrWebhookRejected, resp.Status, bytes.TrimSpace(detail))
	}
	metrics.RecordNotification(metrics.OutcomeSent)
	d.log.Debugw("notification sent", "subject", n.Subject, "status", n.Status.String())
	return nil
}
