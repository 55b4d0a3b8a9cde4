package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/logging"
	"github.com/TheGojiOG/hostbackup/internal/service"
)

type fakeToggle struct {
	enableErr  error
	disableErr error
	enables    int
	disables   int
}

func (f *fakeToggle) Enable(context.Context) error {
	f.enables++
	return f.enableErr
}

func (f *fakeToggle) Disable(context.Context) error {
	f.disables++
	return f.disableErr
}

func (f *fakeToggle) String() string { return "maintenance.service" }

func TestScopeDisablesAfterSuccessAndFailure(t *testing.T) {
	for name, fnErr := range map[string]error{"success": nil, "failure": errors.New("item failed")} {
		t.Run(name, func(t *testing.T) {
			toggle := &fakeToggle{}
			c := NewController(toggle, logging.NewRecorder(), false)

			var during State
			err := c.Scope(context.Background(), func(context.Context) error {
				during = c.State()
				return fnErr
			})

			assert.Equal(t, fnErr, err)
			assert.Equal(t, Enabled, during)
			assert.Equal(t, Disabled, c.State())
			assert.Equal(t, 1, toggle.disables)
		})
	}
}

func TestScopeDisablesOnPanic(t *testing.T) {
	toggle := &fakeToggle{}
	c := NewController(toggle, logging.NewRecorder(), false)

	assert.Panics(t, func() {
		_ = c.Scope(context.Background(), func(context.Context) error {
			panic("item exploded")
		})
	})
	assert.Equal(t, Disabled, c.State())
	assert.Equal(t, 1, toggle.disables)
}

func TestScopeDisablesWithCancelledContext(t *testing.T) {
	toggle := &fakeToggle{}
	c := NewController(toggle, logging.NewRecorder(), false)
	ctx, cancel := context.WithCancel(context.Background())

	_ = c.Scope(ctx, func(context.Context) error {
		cancel()
		return ctx.Err()
	})

	assert.Equal(t, Disabled, c.State())
	assert.Equal(t, 1, toggle.disables)
}

func TestScopeProceedsWhenEnableFails(t *testing.T) {
	toggle := &fakeToggle{enableErr: errors.New("unit missing")}
	rec := logging.NewRecorder()
	c := NewController(toggle, rec, false)

	ran := false
	err := c.Scope(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.Zero(t, toggle.disables)
	assert.Equal(t, Disabled, c.State())
	assert.True(t, rec.Has(logging.MsgMaintenanceEnableErr))
	assert.Equal(t, 1, rec.Count(logging.SeverityWarn))
}

func TestScopeAbortsWhenRequiredEnableFails(t *testing.T) {
	toggle := &fakeToggle{enableErr: errors.New("unit missing")}
	rec := logging.NewRecorder()
	c := NewController(toggle, rec, true)

	ran := false
	err := c.Scope(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})

	require.ErrorIs(t, err, ErrEnableFailed)
	assert.False(t, ran)
	assert.Zero(t, toggle.disables)
	assert.True(t, rec.Has(logging.MsgMaintenanceRequired))
}

func TestDisableFailureIsReportedOnce(t *testing.T) {
	toggle := &fakeToggle{disableErr: errors.New("stuck")}
	rec := logging.NewRecorder()
	c := NewController(toggle, rec, false)

	err := c.Scope(context.Background(), func(context.Context) error { return nil })

	require.ErrorIs(t, err, ErrDisableFailed)
	assert.Equal(t, 1, toggle.disables)
	assert.Equal(t, 1, rec.Count(logging.SeverityCrit))
	assert.True(t, rec.Has(logging.MsgMaintenanceDisableEr))
	assert.Equal(t, DisableFailed, c.State())

	require.NoError(t, c.Disable(context.Background()))
	require.ErrorIs(t, c.Enable(context.Background()), ErrEnableFailed)
	assert.Equal(t, 1, toggle.disables)
	assert.Equal(t, 1, toggle.enables)
	assert.Equal(t, DisableFailed, c.State())
}

func TestEnableIsIdempotent(t *testing.T) {
	toggle := &fakeToggle{}
	c := NewController(toggle, logging.NewRecorder(), false)

	require.NoError(t, c.Enable(context.Background()))
	require.NoError(t, c.Enable(context.Background()))
	assert.Equal(t, 1, toggle.enables)

	require.NoError(t, c.Disable(context.Background()))
	require.NoError(t, c.Disable(context.Background()))
	assert.Equal(t, 1, toggle.disables)
}

func TestNopToggleIsSilent(t *testing.T) {
	rec := logging.NewRecorder()
	c := NewController(nil, rec, false)

	require.NoError(t, c.Scope(context.Background(), func(context.Context) error { return nil }))
	assert.Empty(t, rec.Messages())
	assert.Equal(t, Disabled, c.State())
}

func newServices(t *testing.T, backend service.Backend) *service.Controller {
	t.Helper()
	c, err := service.NewController(service.ControllerConfig{
		Backend:  backend,
		Clock:    testclock.NewClock(time.Now()),
		Reporter: logging.NewRecorder(),
	})
	require.NoError(t, err)
	return c
}

func TestUnitToggleStartAction(t *testing.T) {
	backend := service.NewMockBackend()
	toggle := &UnitToggle{Services: newServices(t, backend), Unit: "maintenance", Action: ActionStart}
	c := NewController(toggle, logging.NewRecorder(), false)

	var active bool
	require.NoError(t, c.Scope(context.Background(), func(context.Context) error {
		active = backend.Active("maintenance.service")
		return nil
	}))

	assert.True(t, active)
	assert.False(t, backend.Active("maintenance.service"))
	assert.Equal(t, []string{"start maintenance.service", "stop maintenance.service"}, backend.Calls())
}

func TestUnitToggleStopAction(t *testing.T) {
	backend := service.NewMockBackend()
	backend.SetActive("nextcloud.service", true)
	toggle := &UnitToggle{Services: newServices(t, backend), Unit: "nextcloud", Action: ActionStop}
	c := NewController(toggle, logging.NewRecorder(), false)

	var active bool
	require.NoError(t, c.Scope(context.Background(), func(context.Context) error {
		active = backend.Active("nextcloud.service")
		return nil
	}))

	assert.False(t, active)
	assert.True(t, backend.Active("nextcloud.service"))
	assert.Equal(t, []string{"stop nextcloud.service", "start nextcloud.service"}, backend.Calls())
}

func TestUnitToggleStopActionFailsWhenWaitUnitCheckFails(t *testing.T) {
	backend := service.NewMockBackend()
	backend.FailCheck("worker.service", errors.New("bus down"))
	toggle := &UnitToggle{Services: newServices(t, backend), Unit: "web", Action: ActionStop, WaitUnit: "worker"}

	err := toggle.Enable(context.Background())

	assert.Error(t, err)
}

func TestCommandToggleRunsConfiguredCommands(t *testing.T) {
	runner := command.NewMockRunner()
	runner.Handle("sudo", func(cmd command.Cmd) (command.Result, error) {
		if cmd.Args[len(cmd.Args)-1] == "--off" {
			return command.Result{ExitCode: 1}, errors.New("occ exited with code 1")
		}
		return command.Result{}, nil
	})
	toggle := &CommandToggle{
		Runner: runner,
		Name:   "occ maintenance:mode",
		On:     command.Cmd{Name: "sudo", Args: []string{"-u", "www-data", "php", "./occ", "maintenance:mode", "--on"}, Dir: "/srv/cloud"},
		Off:    command.Cmd{Name: "sudo", Args: []string{"-u", "www-data", "php", "./occ", "maintenance:mode", "--off"}, Dir: "/srv/cloud"},
	}
	rec := logging.NewRecorder()
	c := NewController(toggle, rec, false)

	err := c.Scope(context.Background(), func(context.Context) error { return nil })

	assert.ErrorIs(t, err, ErrDisableFailed)
	assert.Equal(t, DisableFailed, c.State())
	calls := runner.Invocations("sudo")
	require.Len(t, calls, 2)
	assert.Equal(t, "/srv/cloud", calls[0].Dir)
	assert.True(t, rec.Has(logging.MsgMaintenanceDisableEr))
	msg := rec.Find(logging.MsgMaintenanceEnable)
	require.NotNil(t, msg)
	assert.Equal(t, []any{"occ maintenance:mode"}, msg.Args)
}
