// Package remote executes system commands on the panel host or over SSH.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hostpanel/backend/internal/config"
	"github.com/hostpanel/backend/internal/core/ports"
)

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Code, e.Stderr)
}

// ExitCode returns the exit status carried by err, or -1.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

type LocalRunner struct {
	useSudo bool
	timeout time.Duration
}

func NewLocalRunner(useSudo bool, timeout time.Duration) *LocalRunner {
	return &LocalRunner{useSudo: useSudo, timeout: timeout}
}

func (r *LocalRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if r.useSudo {
		args = append([]string{"-n", name}, args...)
		name = "sudo"
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if ctx.Err() != nil {
		return stdout.String(), fmt.Errorf("%s: %w", name, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), &ExitError{
			Command: strings.TrimSpace(name + " " + strings.Join(args, " ")),
			Code:    exitErr.ExitCode(),
			Stderr:  strings.TrimSpace(stderr.String()),
		}
	}
	return stdout.String(), fmt.Errorf("%s: %w", name, err)
}

// NewRunner builds the runner selected by runner.mode.
func NewRunner(cfg config.RunnerConfig) (ports.CommandRunner, error) {
	switch cfg.Mode {
	case "", "local":
		return NewLocalRunner(cfg.UseSudo, cfg.Timeout), nil
	case "ssh":
		if cfg.Host == "" || cfg.User == "" {
			return nil, errors.New("runner: ssh mode needs host and user")
		}
		return NewSSHRunner(SSHConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			User:       cfg.User,
			Password:   cfg.Password,
			PrivateKey: cfg.PrivateKey,
		}, cfg.UseSudo, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("runner: unknown mode %q", cfg.Mode)
	}
}
