package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/logging"
	"github.com/TheGojiOG/hostbackup/internal/maintenance"
	"github.com/TheGojiOG/hostbackup/internal/service"
)

// RunObserver is notified after every run that executed items.
type RunObserver interface {
	ObserveRun(ctx context.Context, report RunReport) error
}

// ToggleFactory builds the maintenance toggle of a run.
type ToggleFactory func(services *service.Controller, cfg config.MaintenanceConfig) maintenance.Toggle

// Options of a single run
type Options struct {
	// Types restricts the run to these item types; empty runs all.
	Types []string
}

// ManagerConfig wires a Manager. Only Config is required.
type ManagerConfig struct {
	Config        *config.Config
	Runner        command.Runner
	Services      *service.Controller
	Reporter      logging.Reporter
	Clock         clock.Clock
	Lister        DatabaseLister
	LookPath      func(string) (string, error)
	ToggleFactory ToggleFactory
	Observers     []RunObserver
}

// Manager orchestrates backup runs
type Manager struct {
	cfg       *config.Config
	runner    command.Runner
	services  *service.Controller
	reporter  logging.Reporter
	clock     clock.Clock
	lister    DatabaseLister
	lookPath  func(string) (string, error)
	toggle    ToggleFactory
	observers []RunObserver
}

// NewManager creates a new backup manager
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Config == nil {
		return nil, errors.NotValidf("nil configuration")
	}
	m := &Manager{
		cfg:       cfg.Config,
		runner:    cfg.Runner,
		services:  cfg.Services,
		reporter:  cfg.Reporter,
		clock:     cfg.Clock,
		lister:    cfg.Lister,
		lookPath:  cfg.LookPath,
		toggle:    cfg.ToggleFactory,
		observers: cfg.Observers,
	}
	if m.runner == nil {
		m.runner = command.NewExecRunner()
	}
	if m.reporter == nil {
		m.reporter = logging.NewSlogReporter(nil)
	}
	if m.clock == nil {
		m.clock = clock.WallClock
	}
	if m.toggle == nil {
		m.toggle = UnitToggleFactory
	}
	return m, nil
}

// UnitToggleFactory toggles the configured maintenance unit, or nothing when
// no unit is configured.
func UnitToggleFactory(services *service.Controller, cfg config.MaintenanceConfig) maintenance.Toggle {
	if cfg.Unit == "" || services == nil {
		return maintenance.NopToggle{}
	}
	return &maintenance.UnitToggle{
		Services:     services,
		Unit:         cfg.Unit,
		Action:       cfg.Action,
		WaitUnit:     cfg.WaitUnit,
		Timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		PollInterval: time.Duration(cfg.PollSeconds) * time.Second,
	}
}

// Run executes one backup run. The depot is checked and items are selected
// before anything else happens; a failure there aborts the run with a
// NotFound or NotValid error. Items run strictly in sequence inside the
// maintenance scope, and cancellation is only honoured between items.
func (m *Manager) Run(ctx context.Context, opts Options) (RunStatistics, error) {
	startedAt := m.clock.Now()
	runReport := logging.NewTally(m.reporter)
	agg := &aggregate{stats: RunStatistics{ID: uuid.New()}}

	finish := func() RunStatistics {
		agg.addRun(runReport.ErrorCount(), runReport.WarningCount())
		stats, _ := agg.snapshot()
		stats.Duration = m.clock.Now().Sub(startedAt)
		return stats
	}

	depot := m.cfg.Global.Depot
	if info, err := os.Stat(depot); err != nil || !info.IsDir() {
		runReport.Crit(logging.MsgDepotNotFound, depot)
		return finish(), errors.NotFoundf("depot directory %s", depot)
	}

	specs, err := m.selectItems(opts.Types, runReport)
	if err != nil {
		return finish(), err
	}
	agg.stats.TotalItems = len(specs)

	deps := m.deps(depot)
	items := make([]Item, 0, len(specs))
	for _, spec := range specs {
		item, err := NewItem(spec, deps)
		if err != nil {
			runReport.Crit(logging.MsgItemSetupFailed, spec.Name, err)
			continue
		}
		items = append(items, item)
	}

	m.reporter.Info(logging.MsgRunStart, len(specs))

	services := m.services
	if services != nil {
		services = services.With(runReport)
	}
	maint := maintenance.NewController(m.toggle(services, m.cfg.Global.Maintenance), runReport, m.cfg.Global.Maintenance.Required)

	runErr := maint.Scope(ctx, func(ctx context.Context) error {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				runReport.Crit(logging.MsgRunCancelled, len(items)-i)
				return err
			}
			agg.addItem(m.runItem(context.WithoutCancel(ctx), item, depot, services, specs))
		}
		return nil
	})

	if owner := m.cfg.Global.Owner; owner != "" {
		chownDepot(context.WithoutCancel(ctx), m.runner, runReport, depot, owner)
	}

	stats := finish()
	m.reporter.Info(logging.MsgRunFinished, stats.TotalItems, stats.DurationSeconds(), stats.Errors, stats.Warnings)

	_, results := agg.snapshot()
	m.notify(context.WithoutCancel(ctx), RunReport{
		Statistics: stats,
		StartedAt:  startedAt,
		FinishedAt: m.clock.Now(),
		Items:      results,
	})

	return stats, runErr
}

// selectItems applies type validation, the enabled flag and the type
// filter. Unknown item types and unknown filter tags get one warning each.
func (m *Manager) selectItems(filter []string, rep logging.Reporter) ([]config.ItemSpec, error) {
	if len(m.cfg.Items) == 0 {
		rep.Crit(logging.MsgNoItemsConfigured)
		return nil, errors.NotValidf("empty item list")
	}

	var allowed []config.ItemType
	for _, tag := range filter {
		itemType, ok := config.NormalizeType(tag)
		if !ok {
			rep.Warn(logging.MsgInvalidFilterType, tag)
			continue
		}
		allowed = append(allowed, itemType)
	}

	var selected []config.ItemSpec
	for _, spec := range m.cfg.Items {
		itemType, ok := spec.ItemType()
		if !ok {
			rep.Warn(logging.MsgInvalidItemType, spec.Type, spec.Name)
			continue
		}
		if !spec.IsEnabled() {
			continue
		}
		if len(filter) > 0 && !slices.Contains(allowed, itemType) {
			continue
		}
		selected = append(selected, spec)
	}

	if len(selected) == 0 {
		rep.Crit(logging.MsgNoItemsAvailable)
		return nil, errors.NotValidf("no backup items available")
	}
	return selected, nil
}

func (m *Manager) deps(depot string) Deps {
	global := m.cfg.Global
	ledger := NewLedger(filepath.Join(depot, global.Ledger))
	return Deps{
		Runner:   m.runner,
		Services: m.services,
		Post:     NewPostProcessor(ledger, NewCompressor(global.Compression), m.clock),
		Reporter: m.reporter,
		Clock:    m.clock,
		Lister:   m.lister,
		TempDir:  global.TempDir,
		LookPath: m.lookPath,
		Claims:   NewPathClaims(),
	}
}

// runItem runs one item, pausing its timer around it. A panic fails only
// this item.
func (m *Manager) runItem(ctx context.Context, item Item, depot string, services *service.Controller, specs []config.ItemSpec) (res Result) {
	if timer := timerOf(item.Name(), specs); timer != "" && services != nil {
		handle := services.PauseTimer(ctx, timer)
		defer services.ResumeTimer(ctx, handle)
	}

	defer func() {
		if r := recover(); r != nil {
			if a, ok := item.(aborter); ok {
				res = a.abort(r)
				return
			}
			logging.WithItem(m.reporter, item.Name()).Crit(logging.MsgItemPanic, item.Name(), r)
			res = Result{
				Name:       item.Name(),
				Type:       item.Type(),
				State:      StateFailed,
				Statistics: Statistics{Errors: 1},
				Errors:     []string{fmt.Sprintf("panic: %v", r)},
			}
		}
	}()

	return item.Run(ctx, depot)
}

// aborter is implemented by items built on itemBase.
type aborter interface {
	abort(reason any) Result
}

func timerOf(name string, specs []config.ItemSpec) string {
	for _, spec := range specs {
		if spec.Name == name {
			return spec.Timer
		}
	}
	return ""
}

func (m *Manager) notify(ctx context.Context, report RunReport) {
	for _, observer := range m.observers {
		if err := observer.ObserveRun(ctx, report); err != nil {
			m.reporter.Warn(logging.MsgObserverFailed, report.Statistics.ID, err)
		}
	}
}
