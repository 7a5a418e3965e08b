package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hostpanel/backend/internal/domain"
)

type DiscordChannel struct {
	url      string
	username string
	client   *http.Client
}

func NewDiscordChannel(webhookURL, username string, client *http.Client) (*DiscordChannel, error) {
	if webhookURL == "" {
		return nil, errors.New("discord: webhook_url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &DiscordChannel{url: webhookURL, username: username, client: client}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Timestamp   string              `json:"timestamp"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordMessage struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content"`
	Embeds   []discordEmbed `json:"embeds"`
}

func (c *DiscordChannel) Send(ctx context.Context, alert domain.Alert) error {
	var fields []discordEmbedField
	for _, k := range sortedLabelKeys(alert.Labels) {
		fields = append(fields, discordEmbedField{Name: k, Value: alert.Labels[k], Inline: true})
	}

	msg := discordMessage{
		Username: c.username,
		Content:  subject(alert),
		Embeds: []discordEmbed{{
			Title:       alert.DedupKey,
			Description: alert.Message,
			Color:       severityColor(alert.Severity),
			Timestamp:   alert.DetectedAt.UTC().Format(time.RFC3339),
			Fields:      fields,
		}},
	}
	_, err := postJSON(ctx, c.client, c.url, msg)
	return err
}
