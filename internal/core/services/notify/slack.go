package notify

import (
	"context"
	"errors"
	"net/http"

	"github.com/hostpanel/backend/internal/domain"
)

type SlackChannel struct {
	url      string
	username string
	client   *http.Client
}

func NewSlackChannel(webhookURL, username string, client *http.Client) (*SlackChannel, error) {
	if webhookURL == "" {
		return nil, errors.New("slack: webhook_url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackChannel{url: webhookURL, username: username, client: client}, nil
}

func (c *SlackChannel) Name() string { return "slack" }

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Ts     int64        `json:"ts"`
}

type slackMessage struct {
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func (c *SlackChannel) Send(ctx context.Context, alert domain.Alert) error {
	fields := []slackField{
		{Title: "Severity", Value: string(alert.Severity), Short: true},
		{Title: "Category", Value: string(alert.Category), Short: true},
	}
	for _, k := range sortedLabelKeys(alert.Labels) {
		fields = append(fields, slackField{Title: k, Value: alert.Labels[k], Short: true})
	}

	msg := slackMessage{
		Username: c.username,
		Text:     subject(alert),
		Attachments: []slackAttachment{{
			Color:  severityHex(alert.Severity),
			Title:  alert.DedupKey,
			Text:   alert.Message,
			Fields: fields,
			Ts:     alert.DetectedAt.Unix(),
		}},
	}
	_, err := postJSON(ctx, c.client, c.url, msg)
	return err
}
