package system

import (
	"context"
	"errors"
	"strings"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/infrastructure/remote"
)

var ErrInvalidServiceName = errors.New("system: invalid service name")

// SystemctlProbe asks systemd whether a unit is active.
type SystemctlProbe struct {
	runner ports.CommandRunner
}

func NewSystemctlProbe(runner ports.CommandRunner) *SystemctlProbe {
	return &SystemctlProbe{runner: runner}
}

// IsRunning treats any non-zero exit of is-active (3 inactive, 4 unknown
// unit) as stopped. Only failures to run systemctl at all are errors.
func (p *SystemctlProbe) IsRunning(ctx context.Context, service string) (bool, error) {
	if err := validateServiceName(service); err != nil {
		return false, err
	}
	_, err := p.runner.Run(ctx, "systemctl", "is-active", "--quiet", service)
	if err == nil {
		return true, nil
	}
	if remote.ExitCode(err) > 0 {
		return false, nil
	}
	return false, err
}

func validateServiceName(name string) error {
	if name == "" {
		return ErrInvalidServiceName
	}
	// Prevent command injection
	if strings.ContainsAny(name, ";&|`$(){}[]<>\\\"' /") {
		return ErrInvalidServiceName
	}
	return nil
}
