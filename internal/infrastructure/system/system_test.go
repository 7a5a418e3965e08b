package system

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hostpanel/backend/internal/domain"
	"github.com/hostpanel/backend/internal/infrastructure/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerCall struct {
	name string
	args []string
}

// scriptedRunner answers commands by program name.
type scriptedRunner struct {
	calls   []runnerCall
	outputs map[string]string
	errs    map[string]error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.calls = append(r.calls, runnerCall{name: name, args: args})
	return r.outputs[name], r.errs[name]
}

func TestParseValidity(t *testing.T) {
	t.Run("openssl output", func(t *testing.T) {
		out := "notBefore=Jul  1 09:00:00 2026 GMT\nnotAfter=Sep 29 09:00:00 2026 GMT\n"
		issued, err := parseValidity(out)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC), issued.IssuedAt.UTC())
		assert.Equal(t, time.Date(2026, 9, 29, 9, 0, 0, 0, time.UTC), issued.ExpiresAt.UTC())
	})

	t.Run("missing dates", func(t *testing.T) {
		_, err := parseValidity("notAfter=Sep 29 09:00:00 2026 GMT\n")
		assert.Error(t, err)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := parseValidity("notBefore=yesterday\n")
		assert.Error(t, err)
	})
}

func TestCertbotIssuer_Renew(t *testing.T) {
	issuedAt := time.Now().Add(-time.Hour)
	runner := &scriptedRunner{outputs: map[string]string{
		"openssl": "notBefore=Jul  1 09:00:00 2026 GMT\nnotAfter=Sep 29 09:00:00 2026 GMT",
	}}
	issuer := NewCertbotIssuer(runner, CertbotConfig{Email: "ops@example.com"})

	got, err := issuer.Renew(context.Background(), &domain.SslCertificate{DomainName: "example.com", IssuedAt: &issuedAt})
	require.NoError(t, err)
	assert.Equal(t, 2026, got.ExpiresAt.Year())

	require.Len(t, runner.calls, 2)
	certbot := strings.Join(runner.calls[0].args, " ")
	assert.Equal(t, "certbot", runner.calls[0].name)
	assert.Contains(t, certbot, "--nginx")
	assert.Contains(t, certbot, "-d example.com")
	assert.Contains(t, certbot, "--force-renewal")
	assert.Contains(t, certbot, "-m ops@example.com")
	assert.Contains(t, runner.calls[1].args, "/etc/letsencrypt/live/example.com/cert.pem")

	t.Run("rejects shell metacharacters", func(t *testing.T) {
		runner := &scriptedRunner{}
		_, err := NewCertbotIssuer(runner, CertbotConfig{}).Renew(context.Background(), &domain.SslCertificate{DomainName: "a.com; rm -rf /"})
		assert.Error(t, err)
		assert.Empty(t, runner.calls)
	})

	t.Run("certbot failure", func(t *testing.T) {
		runner := &scriptedRunner{errs: map[string]error{"certbot": errors.New("too many certificates already issued")}}
		_, err := NewCertbotIssuer(runner, CertbotConfig{}).Renew(context.Background(), &domain.SslCertificate{DomainName: "example.com"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too many certificates")
		assert.Len(t, runner.calls, 1)
	})
}

func TestSystemctlProbe(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		running bool
		wantErr bool
	}{
		{name: "active", running: true},
		{name: "inactive", err: &remote.ExitError{Command: "systemctl", Code: 3}},
		{name: "unknown unit", err: &remote.ExitError{Command: "systemctl", Code: 4}},
		{name: "ssh down", err: errors.New("dial tcp: connection refused"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{errs: map[string]error{"systemctl": tt.err}}
			running, err := NewSystemctlProbe(runner).IsRunning(context.Background(), "nginx")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.running, running)
			assert.Equal(t, []string{"is-active", "--quiet", "nginx"}, runner.calls[0].args)
		})
	}

	t.Run("invalid names never reach the runner", func(t *testing.T) {
		runner := &scriptedRunner{}
		probe := NewSystemctlProbe(runner)
		for _, name := range []string{"", "nginx;reboot", "a b", "$(id)"} {
			_, err := probe.IsRunning(context.Background(), name)
			assert.ErrorIs(t, err, ErrInvalidServiceName, name)
		}
		assert.Empty(t, runner.calls)
	})
}

func TestSecurityRecorder(t *testing.T) {
	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	r := NewSecurityRecorder(time.Hour)

	r.RecordAuthFailure("10.0.0.1", now.Add(-20*time.Minute))
	r.RecordAuthFailure("10.0.0.1", now.Add(-5*time.Minute))
	r.RecordAuthFailure("10.0.0.1", now.Add(-time.Minute))
	r.RecordAuthFailure("10.0.0.2", now.Add(-2*time.Minute))
	r.RecordAuthFailure("", now)
	r.RecordIntrusion("10.0.0.9", now.Add(-time.Minute))

	assert.Equal(t, domain.SecurityCounts{"10.0.0.1": 2, "10.0.0.2": 1}, r.AuthFailures(now, 10*time.Minute))
	assert.Equal(t, domain.SecurityCounts{"10.0.0.9": 1}, r.IntrusionHits(now, 10*time.Minute))
	assert.Empty(t, r.IntrusionHits(now.Add(time.Hour), 10*time.Minute))

	t.Run("events beyond retention are dropped on write", func(t *testing.T) {
		r := NewSecurityRecorder(time.Minute)
		r.RecordAuthFailure("10.0.0.1", now.Add(-10*time.Minute))
		r.RecordAuthFailure("10.0.0.1", now)
		assert.Equal(t, domain.SecurityCounts{"10.0.0.1": 1}, r.AuthFailures(now, time.Hour))
	})
}
