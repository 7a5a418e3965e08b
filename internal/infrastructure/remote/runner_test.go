package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hostpanel/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunner(t *testing.T) {
	r := NewLocalRunner(false, 5*time.Second)

	t.Run("stdout", func(t *testing.T) {
		out, err := r.Run(context.Background(), "sh", "-c", "echo hello")
		require.NoError(t, err)
		assert.Equal(t, "hello\n", out)
	})

	t.Run("exit status", func(t *testing.T) {
		_, err := r.Run(context.Background(), "sh", "-c", "echo nope >&2; exit 3")
		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 3, exitErr.Code)
		assert.Equal(t, "nope", exitErr.Stderr)
		assert.Equal(t, 3, ExitCode(err))
	})

	t.Run("timeout", func(t *testing.T) {
		r := NewLocalRunner(false, 50*time.Millisecond)
		_, err := r.Run(context.Background(), "sh", "-c", "sleep 5")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, -1, ExitCode(err))
	})
}

func TestNewRunner(t *testing.T) {
	runner, err := NewRunner(config.RunnerConfig{Mode: "local"})
	require.NoError(t, err)
	assert.IsType(t, &LocalRunner{}, runner)

	_, err = NewRunner(config.RunnerConfig{Mode: "ssh"})
	assert.Error(t, err)

	runner, err = NewRunner(config.RunnerConfig{Mode: "ssh", Host: "10.0.0.5", User: "panel"})
	require.NoError(t, err)
	assert.IsType(t, &SSHRunner{}, runner)

	_, err = NewRunner(config.RunnerConfig{Mode: "telnet"})
	assert.Error(t, err)
}

func TestShellJoin(t *testing.T) {
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"systemctl", "is-active", "--quiet", "nginx"}, "systemctl is-active --quiet nginx"},
		{[]string{"echo", ""}, "echo ''"},
		{[]string{"echo", "a b"}, "echo 'a b'"},
		{[]string{"echo", "it's"}, `echo 'it'\''s'`},
		{[]string{"echo", "$(id)"}, "echo '$(id)'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shellJoin(tt.argv))
	}
}

func TestSSHClient_AuthMethods(t *testing.T) {
	_, err := NewSSHClient(SSHConfig{Host: "10.0.0.5", User: "panel"}).getAuthMethods()
	assert.ErrorIs(t, err, ErrSSHAuthentication)

	_, err = NewSSHClient(SSHConfig{Host: "10.0.0.5", User: "panel", PrivateKey: "not a key"}).getAuthMethods()
	assert.ErrorIs(t, err, ErrSSHAuthentication)

	methods, err := NewSSHClient(SSHConfig{Host: "10.0.0.5", User: "panel", Password: "pw"}).getAuthMethods()
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}

func TestSSHClient_ConnectHonoursContext(t *testing.T) {
	client := NewSSHClient(SSHConfig{Host: "127.0.0.1", Port: 1, User: "panel", Password: "pw", Timeout: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := client.Connect(ctx)
	assert.ErrorIs(t, err, ErrSSHConnection)
	assert.Less(t, time.Since(started), 2*time.Second)
}
