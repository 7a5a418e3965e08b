package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hostpanel/backend/internal/config"
	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/logger"
	"github.com/hostpanel/backend/pkg/utils/crypto"
)

const SettingCategoryNotifications = "notifications"

const maskedSecret = "********"

type channelOverride struct {
	secret bool
	apply  func(cfg *config.NotificationsConfig, value string) error
}

// channelOverrides lists the notification settings operators may store in
// the database on top of the file configuration.
var channelOverrides = map[string]channelOverride{
	"notify_email_enabled":       {apply: boolSetting(func(c *config.NotificationsConfig) *bool { return &c.Email.Enabled })},
	"notify_email_provider":      {apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Email.Provider })},
	"notify_email_from":          {apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Email.From })},
	"notify_email_to":            {apply: func(c *config.NotificationsConfig, v string) error { c.Email.To = splitList(v); return nil }},
	"notify_email_smtp_host":     {apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Email.SMTPHost })},
	"notify_email_smtp_port":     {apply: intSetting(func(c *config.NotificationsConfig) *int { return &c.Email.SMTPPort })},
	"notify_email_username":      {apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Email.Username })},
	"notify_email_password":      {secret: true, apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Email.Password })},
	"notify_email_mailgun_key":   {secret: true, apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Email.MailgunKey })},
	"notify_email_domain":        {apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Email.Domain })},
	"notify_slack_enabled":       {apply: boolSetting(func(c *config.NotificationsConfig) *bool { return &c.Slack.Enabled })},
	"notify_slack_webhook_url":   {secret: true, apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Slack.WebhookURL })},
	"notify_discord_enabled":     {apply: boolSetting(func(c *config.NotificationsConfig) *bool { return &c.Discord.Enabled })},
	"notify_discord_webhook_url": {secret: true, apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Discord.WebhookURL })},
	"notify_telegram_enabled":    {apply: boolSetting(func(c *config.NotificationsConfig) *bool { return &c.Telegram.Enabled })},
	"notify_telegram_bot_token":  {secret: true, apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Telegram.BotToken })},
	"notify_telegram_chat_id":    {apply: stringSetting(func(c *config.NotificationsConfig) *string { return &c.Telegram.ChatID })},
}

// IsSecretSetting reports whether key is stored encrypted.
func IsSecretSetting(key string) bool {
	return channelOverrides[key].secret
}

type SystemSettingService struct {
	repo          ports.SystemSettingRepository
	logger        *logger.Logger
	encryptionKey string
	locks         *keyLocker
}

func NewSystemSettingService(repo ports.SystemSettingRepository, logger *logger.Logger, encryptionKey string) *SystemSettingService {
	return &SystemSettingService{
		repo:          repo,
		logger:        logger,
		encryptionKey: encryptionKey,
		locks:         newKeyLocker(),
	}
}

// GetSettings returns the stored notification settings with secrets masked.
func (s *SystemSettingService) GetSettings(ctx context.Context) (map[string]string, error) {
	settings, err := s.repo.GetByCategory(ctx, SettingCategoryNotifications)
	if err != nil {
		s.logger.Errorw("setting_list_failed", "category", SettingCategoryNotifications, "error", err)
		return nil, err
	}
	result := make(map[string]string, len(settings))
	for _, setting := range settings {
		if setting.Type == domain.SettingTypeSecret {
			result[setting.Key] = maskedSecret
			continue
		}
		result[setting.Key] = setting.Value
	}
	return result, nil
}

// UpdateSettings validates and stores notification overrides. Secret values
// are encrypted with the security key before they reach the repository.
func (s *SystemSettingService) UpdateSettings(ctx context.Context, settings map[string]interface{}) error {
	keys := make([]string, 0, len(settings))
	for key := range settings {
		if _, ok := channelOverrides[key]; !ok {
			return fmt.Errorf("%w: unknown setting %q", ErrSettingInvalid, key)
		}
		keys = append(keys, "setting:"+key)
	}
	unlock := s.locks.lockKeys(keys...)
	defer unlock()

	for key, val := range settings {
		var strVal string
		switch v := val.(type) {
		case string:
			strVal = v
		case []string:
			strVal = strings.Join(v, ",")
		case int, int8, int16, int32, int64:
			strVal = fmt.Sprintf("%d", v)
		case float32, float64:
			strVal = fmt.Sprintf("%g", v)
		case bool:
			strVal = strconv.FormatBool(v)
		default:
			strVal = fmt.Sprintf("%v", v)
		}

		override := channelOverrides[key]
		var probe config.NotificationsConfig
		if err := override.apply(&probe, strVal); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSettingInvalid, key, err)
		}

		setting := &domain.SystemSetting{
			Key:      key,
			Value:    strVal,
			Type:     "string",
			Category: SettingCategoryNotifications,
		}
		if override.secret {
			enc, err := crypto.Encrypt(strVal, s.encryptionKey)
			if err != nil {
				return fmt.Errorf("setting %s: %w", key, err)
			}
			setting.Value = enc
			setting.Type = domain.SettingTypeSecret
		}

		if err := s.repo.Set(ctx, setting); err != nil {
			s.logger.Errorw("setting_update_failed", "key", key, "error", err)
			return err
		}
		s.logger.Infow("setting_updated", "key", key, "secret", override.secret)
	}
	return nil
}

// LoadChannelSettings applies stored overrides to base. Every bad row is
// reported; the caller decides whether to start with base alone.
func (s *SystemSettingService) LoadChannelSettings(ctx context.Context, base config.NotificationsConfig) (config.NotificationsConfig, error) {
	cfg := base
	cfg.Email.To = append([]string(nil), base.Email.To...)

	settings, err := s.repo.GetByCategory(ctx, SettingCategoryNotifications)
	if err != nil {
		return base, fmt.Errorf("%w: %v", ErrSettingsLoadFailed, err)
	}

	var errs []error
	for _, setting := range settings {
		override, ok := channelOverrides[setting.Key]
		if !ok {
			s.logger.Warnw("setting_unknown_key_ignored", "key", setting.Key)
			continue
		}
		value := setting.Value
		if setting.Type == domain.SettingTypeSecret {
			value, err = crypto.Decrypt(setting.Value, s.encryptionKey)
			if err != nil {
				errs = append(errs, fmt.Errorf("decrypt %s: %w", setting.Key, err))
				continue
			}
		}
		if err := override.apply(&cfg, value); err != nil {
			errs = append(errs, fmt.Errorf("apply %s: %w", setting.Key, err))
		}
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrSettingsLoadFailed, errors.Join(errs...))
	}
	s.logger.Infow("setting_channel_overrides_loaded", "count", len(settings))
	return cfg, nil
}

func stringSetting(field func(*config.NotificationsConfig) *string) func(*config.NotificationsConfig, string) error {
	return func(c *config.NotificationsConfig, v string) error {
		*field(c) = v
		return nil
	}
}

func boolSetting(field func(*config.NotificationsConfig) *bool) func(*config.NotificationsConfig, string) error {
	return func(c *config.NotificationsConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func intSetting(field func(*config.NotificationsConfig) *int) func(*config.NotificationsConfig, string) error {
	return func(c *config.NotificationsConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
