package service

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/TheGojiOG/hostbackup/internal/logging"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = time.Second
)

// ControllerConfig configures a Controller. Zero values fall back to the
// wall clock, a discarding reporter and the default timings.
type ControllerConfig struct {
	Backend      Backend
	Clock        clock.Clock
	Reporter     logging.Reporter
	Timeout      time.Duration
	PollInterval time.Duration
}

// Controller starts and stops units and waits for them to become inactive.
// Failures are reported as warnings and returned; they are never fatal to
// the controller itself.
type Controller struct {
	backend  Backend
	clock    clock.Clock
	reporter logging.Reporter
	timeout  time.Duration
	poll     time.Duration
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("service backend is required")
	}
	c := &Controller{
		backend:  cfg.Backend,
		clock:    cfg.Clock,
		reporter: cfg.Reporter,
		timeout:  cfg.Timeout,
		poll:     cfg.PollInterval,
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.reporter == nil {
		c.reporter = logging.NewSlogReporter(nil)
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.poll <= 0 {
		c.poll = DefaultPollInterval
	}
	return c, nil
}

// With returns a copy of the controller reporting to rep.
func (c *Controller) With(rep logging.Reporter) *Controller {
	next := *c
	next.reporter = rep
	return &next
}

// Timeout returns the default wait timeout.
func (c *Controller) Timeout() time.Duration { return c.timeout }

// PollInterval returns the default poll interval.
func (c *Controller) PollInterval() time.Duration { return c.poll }

// Start starts a service unit.
func (c *Controller) Start(ctx context.Context, name string) error {
	return c.start(ctx, UnitName(name, KindService))
}

func (c *Controller) start(ctx context.Context, unit string) error {
	c.reporter.Info(logging.MsgServiceStart, unit)
	if err := c.backend.StartUnit(ctx, unit); err != nil {
		c.reporter.Warn(logging.MsgServiceStartFailed, unit, err)
		return fmt.Errorf("failed to start %s: %w", unit, err)
	}
	return nil
}

// Stop stops a service unit and waits until it is inactive, using the
// controller's default timeout and poll interval.
func (c *Controller) Stop(ctx context.Context, name string) (WaitResult, error) {
	unit := UnitName(name, KindService)
	if err := c.stop(ctx, unit); err != nil {
		return CheckFailed, err
	}
	return c.wait(ctx, unit, c.timeout, c.poll), nil
}

func (c *Controller) stop(ctx context.Context, unit string) error {
	c.reporter.Info(logging.MsgServiceStop, unit)
	if err := c.backend.StopUnit(ctx, unit); err != nil {
		c.reporter.Warn(logging.MsgServiceStopFailed, unit, err)
		return fmt.Errorf("failed to stop %s: %w", unit, err)
	}
	return nil
}

// IsActive reports whether a service unit is active.
func (c *Controller) IsActive(ctx context.Context, name string) (bool, error) {
	return c.backend.IsActive(ctx, UnitName(name, KindService))
}

// WaitUntilInactive polls a service unit until it is inactive or timeout
// has elapsed. A failing activity check ends the wait immediately.
func (c *Controller) WaitUntilInactive(ctx context.Context, name string, timeout, pollInterval time.Duration) WaitResult {
	if timeout <= 0 {
		timeout = c.timeout
	}
	if pollInterval <= 0 {
		pollInterval = c.poll
	}
	return c.wait(ctx, UnitName(name, KindService), timeout, pollInterval)
}

func (c *Controller) wait(ctx context.Context, unit string, timeout, pollInterval time.Duration) WaitResult {
	start := c.clock.Now()
	announced := false

	for {
		active, err := c.backend.IsActive(ctx, unit)
		if err != nil {
			c.reporter.Warn(logging.MsgServiceCheckFailed, unit, err)
			return CheckFailed
		}
		if !active {
			return Stopped
		}

		elapsed := c.clock.Now().Sub(start)
		if elapsed >= timeout {
			c.reporter.Warn(logging.MsgServiceTooLong, int(elapsed.Seconds()), int(timeout.Seconds()), unit)
			return TimedOut
		}
		if !announced {
			c.reporter.Info(logging.MsgServiceStillActive, unit, timeout)
			announced = true
		}

		select {
		case <-ctx.Done():
			c.reporter.Warn(logging.MsgServiceCheckFailed, unit, ctx.Err())
			return CheckFailed
		case <-c.clock.After(pollInterval):
		}
	}
}

// PauseTimer stops a timer unit so it cannot fire while a backup item runs.
// A run of the timer's service that is already in progress is waited for
// first. The returned handle records whether the timer was active and is
// passed to ResumeTimer.
func (c *Controller) PauseTimer(ctx context.Context, name string) Handle {
	unit := UnitName(name, KindTimer)
	handle := Handle{Unit: unit, Kind: KindTimer}

	serviceUnit := baseName(unit) + ".service"
	if active, err := c.backend.IsActive(ctx, serviceUnit); err == nil && active {
		c.wait(ctx, serviceUnit, c.timeout, c.poll)
	}

	if active, err := c.backend.IsActive(ctx, unit); err == nil {
		handle.Active = active
	}
	_ = c.stop(ctx, unit)
	return handle
}

// ResumeTimer starts the timer of a handle obtained from PauseTimer. A
// timer that was not active when it was paused stays stopped.
func (c *Controller) ResumeTimer(ctx context.Context, handle Handle) error {
	if !handle.Active {
		return nil
	}
	return c.start(ctx, handle.Unit)
}
