// Package maintenance switches the host into maintenance mode for the
// duration of a backup run and guarantees it is switched back.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/logging"
	"github.com/TheGojiOG/hostbackup/internal/service"
)

var (
	ErrEnableFailed  = errors.New("failed to enable maintenance mode")
	ErrDisableFailed = errors.New("failed to disable maintenance mode")
)

// State of the maintenance mode within one run.
type State int

const (
	Disabled State = iota
	Enabling
	Enabled
	Disabling
	// DisableFailed is terminal: the toggle could not switch maintenance
	// mode off and the host may still be in it.
	DisableFailed
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Enabling:
		return "enabling"
	case Enabled:
		return "enabled"
	case Disabling:
		return "disabling"
	case DisableFailed:
		return "disable failed"
	default:
		return "unknown"
	}
}

// Toggle switches the external maintenance mode on and off.
type Toggle interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	String() string
}

// NopToggle is used when no maintenance unit is configured.
type NopToggle struct{}

func (NopToggle) Enable(context.Context) error  { return nil }
func (NopToggle) Disable(context.Context) error { return nil }
func (NopToggle) String() string                { return "" }

// Actions of a UnitToggle.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// UnitToggle enables maintenance mode by starting a unit, or with action
// "stop" by stopping it and waiting until it, or WaitUnit, is inactive.
type UnitToggle struct {
	Services     *service.Controller
	Unit         string
	Action       string
	WaitUnit     string
	Timeout      time.Duration
	PollInterval time.Duration
}

func (t *UnitToggle) String() string {
	return service.UnitName(t.Unit, service.KindService)
}

func (t *UnitToggle) Enable(ctx context.Context) error {
	if t.Action == ActionStop {
		return t.stop(ctx)
	}
	return t.Services.Start(ctx, t.Unit)
}

func (t *UnitToggle) Disable(ctx context.Context) error {
	if t.Action == ActionStop {
		return t.Services.Start(ctx, t.Unit)
	}
	_, err := t.Services.Stop(ctx, t.Unit)
	return err
}

func (t *UnitToggle) stop(ctx context.Context) error {
	res, err := t.Services.Stop(ctx, t.Unit)
	if err != nil {
		return err
	}
	if t.WaitUnit != "" {
		res = t.Services.WaitUntilInactive(ctx, t.WaitUnit, t.Timeout, t.PollInterval)
	}
	if res != service.Stopped {
		return fmt.Errorf("waiting for maintenance unit: %s", res)
	}
	return nil
}

// CommandToggle switches an application's own maintenance mode by running
// one program to enable it and another to disable it.
type CommandToggle struct {
	Runner command.Runner
	Name   string
	On     command.Cmd
	Off    command.Cmd
}

func (t *CommandToggle) String() string { return t.Name }

func (t *CommandToggle) Enable(ctx context.Context) error {
	_, err := t.Runner.Run(ctx, t.On)
	return err
}

func (t *CommandToggle) Disable(ctx context.Context) error {
	_, err := t.Runner.Run(ctx, t.Off)
	return err
}

// Controller tracks the maintenance state of one run.
type Controller struct {
	mu       sync.Mutex
	state    State
	toggle   Toggle
	reporter logging.Reporter
	required bool
}

// NewController creates a controller in state Disabled. With required set,
// a failed enable stops the run instead of letting it proceed.
func NewController(toggle Toggle, rep logging.Reporter, required bool) *Controller {
	if toggle == nil {
		toggle = NopToggle{}
	}
	return &Controller{toggle: toggle, reporter: rep, required: required}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Enable switches maintenance mode on. It is a no-op if already enabled.
// On failure the state reverts to Disabled.
func (c *Controller) Enable(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Enabled:
		c.mu.Unlock()
		return nil
	case DisableFailed:
		c.mu.Unlock()
		return fmt.Errorf("%w: previous disable failed", ErrEnableFailed)
	}
	c.state = Enabling
	c.mu.Unlock()

	name := c.toggle.String()
	if name != "" {
		c.reporter.Info(logging.MsgMaintenanceEnable, name)
	}
	if err := c.toggle.Enable(ctx); err != nil {
		c.setState(Disabled)
		if c.required {
			c.reporter.Crit(logging.MsgMaintenanceRequired, err)
		} else {
			c.reporter.Warn(logging.MsgMaintenanceEnableErr, err)
		}
		return fmt.Errorf("%w: %w", ErrEnableFailed, err)
	}

	c.setState(Enabled)
	if name != "" {
		c.reporter.Info(logging.MsgMaintenanceEnabled)
	}
	return nil
}

// Disable switches maintenance mode off if it is enabled. A failure is
// reported once and moves the controller to DisableFailed, which later
// Enable and Disable calls leave alone.
func (c *Controller) Disable(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Enabled {
		c.mu.Unlock()
		return nil
	}
	c.state = Disabling
	c.mu.Unlock()

	name := c.toggle.String()
	if name != "" {
		c.reporter.Info(logging.MsgMaintenanceDisable, name)
	}
	if err := c.toggle.Disable(ctx); err != nil {
		c.setState(DisableFailed)
		c.reporter.Crit(logging.MsgMaintenanceDisableEr, err)
		return fmt.Errorf("%w: %w", ErrDisableFailed, err)
	}

	c.setState(Disabled)
	if name != "" {
		c.reporter.Info(logging.MsgMaintenanceDisabled)
	}
	return nil
}

// Scope runs fn with maintenance mode enabled. Disable is attempted exactly
// once after fn returns or panics, whenever Enable succeeded, using a
// context that is not cancelled with ctx. An enable failure only prevents
// fn from running when the controller is required.
func (c *Controller) Scope(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if enableErr := c.Enable(ctx); enableErr != nil && c.required {
		return enableErr
	}

	defer func() {
		if c.State() != Enabled {
			return
		}
		if disableErr := c.Disable(context.WithoutCancel(ctx)); disableErr != nil {
			err = errors.Join(err, disableErr)
		}
	}()

	return fn(ctx)
}
