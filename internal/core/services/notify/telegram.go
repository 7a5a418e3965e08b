package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hostpanel/backend/internal/domain"
)

type TelegramChannel struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

func NewTelegramChannel(apiURL, botToken, chatID string, client *http.Client) (*TelegramChannel, error) {
	if botToken == "" || chatID == "" {
		return nil, errors.New("telegram: bot_token and chat_id are required")
	}
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TelegramChannel{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  botToken,
		chatID: chatID,
		client: client,
	}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, alert domain.Alert) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.token)
	payload := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     subject(alert) + "\n\n" + plainText(alert),
		"disable_web_page_preview": true,
	}

	body, err := postJSON(ctx, c.client, url, payload)
	if err != nil {
		// the token is part of the URL
		return errors.New(strings.ReplaceAll(err.Error(), c.token, "***"))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("telegram: failed to parse response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram: %s", result.Description)
	}
	return nil
}
