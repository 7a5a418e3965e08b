package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hostpanel/backend/internal/config"
	"github.com/hostpanel/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAlert() domain.Alert {
	return domain.Alert{
		Category:   domain.AlertCategoryCertificate,
		Severity:   domain.SeverityWarning,
		Message:    "certificate for example.com expires in 5 days",
		DedupKey:   "cert-expiry:7",
		DetectedAt: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC),
		Source:     "cert_expiry",
		Labels:     map[string]string{"domain": "example.com", "days": "5"},
	}
}

// captureServer records the last JSON body it received.
func captureServer(t *testing.T, status int, reply string) (*httptest.Server, *map[string]interface{}, *string) {
	t.Helper()
	var body map[string]interface{}
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &body, &path
}

func TestSlackChannel_Send(t *testing.T) {
	srv, body, _ := captureServer(t, http.StatusOK, "ok")
	ch, err := NewSlackChannel(srv.URL, "hostpanel", srv.Client())
	require.NoError(t, err)

	require.NoError(t, ch.Send(context.Background(), sampleAlert()))

	assert.Equal(t, "hostpanel", (*body)["username"])
	assert.Equal(t, "[WARNING] certificate: certificate for example.com expires in 5 days", (*body)["text"])
	attachments := (*body)["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]interface{})
	assert.Equal(t, "#f9a825", att["color"])
	assert.Equal(t, "cert-expiry:7", att["title"])
	// severity, category and two sorted labels
	fields := att["fields"].([]interface{})
	require.Len(t, fields, 4)
	assert.Equal(t, "days", fields[2].(map[string]interface{})["title"])
}

func TestSlackChannel_Non2xxIsAnError(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusServiceUnavailable, "try later")
	ch, err := NewSlackChannel(srv.URL, "", srv.Client())
	require.NoError(t, err)

	err = ch.Send(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=503")
	assert.Contains(t, err.Error(), "try later")
}

func TestDiscordChannel_Send(t *testing.T) {
	srv, body, _ := captureServer(t, http.StatusNoContent, "")
	ch, err := NewDiscordChannel(srv.URL, "panel", srv.Client())
	require.NoError(t, err)

	require.NoError(t, ch.Send(context.Background(), sampleAlert()))

	embeds := (*body)["embeds"].([]interface{})
	require.Len(t, embeds, 1)
	embed := embeds[0].(map[string]interface{})
	assert.EqualValues(t, 0xf9a825, embed["color"])
	assert.Equal(t, "2026-07-01T09:00:00Z", embed["timestamp"])
	assert.Equal(t, "certificate for example.com expires in 5 days", embed["description"])
}

func TestTelegramChannel(t *testing.T) {
	t.Run("sends to the bot endpoint", func(t *testing.T) {
		srv, body, path := captureServer(t, http.StatusOK, `{"ok":true}`)
		ch, err := NewTelegramChannel(srv.URL+"/", "123:secret", "-100", srv.Client())
		require.NoError(t, err)

		require.NoError(t, ch.Send(context.Background(), sampleAlert()))
		assert.Equal(t, "/bot123:secret/sendMessage", *path)
		assert.Equal(t, "-100", (*body)["chat_id"])
		assert.Contains(t, (*body)["text"], "Key: cert-expiry:7")
	})

	t.Run("api rejection", func(t *testing.T) {
		srv, _, _ := captureServer(t, http.StatusOK, `{"ok":false,"description":"chat not found"}`)
		ch, err := NewTelegramChannel(srv.URL, "123:secret", "-100", srv.Client())
		require.NoError(t, err)

		err = ch.Send(context.Background(), sampleAlert())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chat not found")
	})

	t.Run("token is masked in transport errors", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		ch, err := NewTelegramChannel(url, "123:secret", "-100", nil)
		require.NoError(t, err)

		err = ch.Send(context.Background(), sampleAlert())
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "123:secret")
		assert.Contains(t, err.Error(), "***")
	})

	t.Run("requires credentials", func(t *testing.T) {
		_, err := NewTelegramChannel("", "", "-100", nil)
		assert.Error(t, err)
	})
}

func TestSend_RespectsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ch, err := NewSlackChannel(srv.URL, "", srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = ch.Send(ctx, sampleAlert())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeMailSender struct {
	subject, body string
}

func (f *fakeMailSender) send(_ context.Context, subject, body string) error {
	f.subject, f.body = subject, body
	return nil
}

func TestEmailChannel(t *testing.T) {
	t.Run("formats subject and body", func(t *testing.T) {
		sender := &fakeMailSender{}
		ch := &EmailChannel{sender: sender}

		require.NoError(t, ch.Send(context.Background(), sampleAlert()))
		assert.Equal(t, "[WARNING] certificate: certificate for example.com expires in 5 days", sender.subject)
		assert.Contains(t, sender.body, "Source: cert_expiry")
		assert.Contains(t, sender.body, "Detected: Wed, 01 Jul 2026 09:00:00 UTC")
		assert.Regexp(t, `days: 5\ndomain: example.com`, sender.body)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := NewEmailChannel(config.EmailChannelConfig{Provider: "smtp", To: []string{"ops@example.com"}})
		assert.Error(t, err, "from is required")

		_, err = NewEmailChannel(config.EmailChannelConfig{Provider: "mailgun", From: "panel@example.com", To: []string{"ops@example.com"}})
		assert.Error(t, err, "mailgun needs key and domain")

		_, err = NewEmailChannel(config.EmailChannelConfig{Provider: "pigeon", From: "panel@example.com", To: []string{"ops@example.com"}})
		assert.Error(t, err)

		ch, err := NewEmailChannel(config.EmailChannelConfig{
			Provider:   "mailgun",
			From:       "panel@example.com",
			To:         []string{"ops@example.com"},
			MailgunKey: "key-123",
			Domain:     "mg.example.com",
		})
		require.NoError(t, err)
		assert.Equal(t, "email", ch.Name())
	})
}

func TestBuildChannels(t *testing.T) {
	t.Run("only enabled channels", func(t *testing.T) {
		channels, err := BuildChannels(config.NotificationsConfig{
			Slack:    config.WebhookChannelConfig{Enabled: true, WebhookURL: "https://hooks.slack.test/x"},
			Discord:  config.WebhookChannelConfig{Enabled: false, WebhookURL: "https://discord.test/x"},
			Telegram: config.TelegramChannelConfig{Enabled: true, BotToken: "t", ChatID: "c"},
		}, nil)
		require.NoError(t, err)
		require.Len(t, channels, 2)
		assert.Equal(t, "slack", channels[0].Name())
		assert.Equal(t, "telegram", channels[1].Name())
	})

	t.Run("misconfigured channel is reported", func(t *testing.T) {
		channels, err := BuildChannels(config.NotificationsConfig{
			Slack:   config.WebhookChannelConfig{Enabled: true},
			Discord: config.WebhookChannelConfig{Enabled: true, WebhookURL: "https://discord.test/x"},
		}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "slack")
		require.Len(t, channels, 1)
		assert.Equal(t, "discord", channels[0].Name())
	})
}
