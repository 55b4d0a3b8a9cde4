package service

import (
	"context"
	"fmt"

	"github.com/TheGojiOG/hostbackup/internal/command"
)

// SystemctlBackend drives units through the systemctl binary.
type SystemctlBackend struct {
	runner command.Runner
	binary string
}

func NewSystemctlBackend(runner command.Runner) *SystemctlBackend {
	return &SystemctlBackend{runner: runner, binary: "systemctl"}
}

func (b *SystemctlBackend) StartUnit(ctx context.Context, unit string) error {
	if _, err := b.runner.Run(ctx, command.Cmd{Name: b.binary, Args: []string{"start", unit}}); err != nil {
		return fmt.Errorf("systemctl start: %w", err)
	}
	return nil
}

func (b *SystemctlBackend) StopUnit(ctx context.Context, unit string) error {
	if _, err := b.runner.Run(ctx, command.Cmd{Name: b.binary, Args: []string{"stop", unit}}); err != nil {
		return fmt.Errorf("systemctl stop: %w", err)
	}
	return nil
}

// IsActive uses the exit status of "systemctl is-active --quiet": zero means
// active, any other status means inactive.
func (b *SystemctlBackend) IsActive(ctx context.Context, unit string) (bool, error) {
	res, err := b.runner.Run(ctx, command.Cmd{Name: b.binary, Args: []string{"is-active", "--quiet", unit}})
	if err == nil {
		return true, nil
	}
	if res.ExitCode > 0 {
		return false, nil
	}
	return false, fmt.Errorf("systemctl is-active: %w", err)
}
