package notify

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hostpanel/backend/internal/config"
	"github.com/hostpanel/backend/internal/core/ports"
)

// BuildChannels returns every enabled channel. A misconfigured enabled
// channel is an error so the operator sees it at startup.
func BuildChannels(cfg config.NotificationsConfig, client *http.Client) ([]ports.NotificationChannel, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	var channels []ports.NotificationChannel
	var errs []error

	if cfg.Email.Enabled {
		ch, err := NewEmailChannel(cfg.Email)
		if err != nil {
			errs = append(errs, err)
		} else {
			channels = append(channels, ch)
		}
	}
	if cfg.Slack.Enabled {
		ch, err := NewSlackChannel(cfg.Slack.WebhookURL, cfg.Slack.Username, client)
		if err != nil {
			errs = append(errs, err)
		} else {
			channels = append(channels, ch)
		}
	}
	if cfg.Discord.Enabled {
		ch, err := NewDiscordChannel(cfg.Discord.WebhookURL, cfg.Discord.Username, client)
		if err != nil {
			errs = append(errs, err)
		} else {
			channels = append(channels, ch)
		}
	}
	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, client)
		if err != nil {
			errs = append(errs, err)
		} else {
			channels = append(channels, ch)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return channels, fmt.Errorf("invalid notification channels: %w", err)
	}
	return channels, nil
}
