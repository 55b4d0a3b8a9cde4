package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	jujuerrors "github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/database"
	"github.com/TheGojiOG/hostbackup/internal/logging"
	"github.com/TheGojiOG/hostbackup/internal/maintenance"
)

func testConfig(depot, source string) *config.Config {
	cfg := config.Default()
	cfg.Global.Depot = depot
	cfg.Global.Maintenance.Unit = "maintenance"
	cfg.Items = []config.ItemSpec{
		{Name: "orders", Type: "database", Engine: config.EngineMySQL, Databases: []string{"orders"}, Host: "localhost", Port: 3306},
		{Name: "home", Type: "sync", Source: source},
		{Name: "odd", Type: "foo"},
	}
	return cfg
}

func (e *testEnv) manager(t *testing.T, cfg *config.Config, observers ...RunObserver) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{
		Config:    cfg,
		Runner:    e.runner,
		Services:  e.services,
		Reporter:  e.rec,
		Clock:     e.clock,
		LookPath:  func(string) (string, error) { return "", errNotFound },
		Observers: observers,
	})
	require.NoError(t, err)
	return m
}

func (e *testEnv) handleTools() {
	e.runner.Handle("mysqldump", writeOutput("-- orders\n"))
	e.runner.Handle("rsync", func(command.Cmd) (command.Result, error) {
		return command.Result{Stdout: rsyncStats}, nil
	})
}

type reportCollector struct {
	reports []RunReport
	err     error
}

func (c *reportCollector) ObserveRun(_ context.Context, report RunReport) error {
	c.reports = append(c.reports, report)
	return c.err
}

func TestRunFiltersUnknownTypes(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	collector := &reportCollector{}
	m := env.manager(t, testConfig(env.depot, t.TempDir()), collector)

	stats, err := m.Run(context.Background(), Options{Types: []string{"database", "sync"}})

	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, 1, stats.Warnings)
	assert.Equal(t, int64(1+1100), stats.Files)
	assert.False(t, stats.Failed())

	msg := env.rec.Find(logging.MsgInvalidItemType)
	require.NotNil(t, msg)
	assert.Equal(t, []any{"foo", "odd"}, msg.Args)

	assert.Equal(t, []string{"start maintenance.service", "stop maintenance.service"}, env.backend.Calls())
	assert.FileExists(t, filepath.Join(env.depot, "orders_orders.sql.zst"))

	require.Len(t, collector.reports, 1)
	assert.Len(t, collector.reports[0].Items, 2)
	assert.Equal(t, stats, collector.reports[0].Statistics)
}

func TestRunTypeFilterUsesAliases(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	m := env.manager(t, testConfig(env.depot, t.TempDir()))

	stats, err := m.Run(context.Background(), Options{Types: []string{"mysql"}})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalItems)
	assert.Empty(t, env.runner.Invocations("rsync"))
}

func TestRunMissingDepot(t *testing.T) {
	env := newTestEnv(t)
	depot := filepath.Join(env.depot, "missing")
	m := env.manager(t, testConfig(depot, t.TempDir()))

	stats, err := m.Run(context.Background(), Options{})

	require.True(t, jujuerrors.Is(err, jujuerrors.NotFound), "got %v", err)
	assert.Equal(t, 1, stats.Errors)
	assert.True(t, env.rec.Has(logging.MsgDepotNotFound))
	assert.Empty(t, env.backend.Calls())
	assert.Empty(t, env.runner.Calls)
	assert.NoDirExists(t, depot)
}

func TestRunWithoutEligibleItems(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(t, testConfig(env.depot, t.TempDir()))

	stats, err := m.Run(context.Background(), Options{Types: []string{"mailbox"}})

	require.True(t, jujuerrors.Is(err, jujuerrors.NotValid), "got %v", err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 0, stats.TotalItems)
	assert.True(t, env.rec.Has(logging.MsgNoItemsAvailable))
	assert.Empty(t, env.backend.Calls())
	assert.Empty(t, env.runner.Calls)

	entries, err := os.ReadDir(env.depot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunWithoutConfiguredItems(t *testing.T) {
	env := newTestEnv(t)
	cfg := testConfig(env.depot, t.TempDir())
	cfg.Items = nil
	m := env.manager(t, cfg)

	_, err := m.Run(context.Background(), Options{})

	require.True(t, jujuerrors.Is(err, jujuerrors.NotValid), "got %v", err)
	assert.True(t, env.rec.Has(logging.MsgNoItemsConfigured))
}

func TestRunSkipsDisabledItemsSilently(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	cfg := testConfig(env.depot, t.TempDir())
	disabled := false
	cfg.Items[0].Enabled = &disabled
	cfg.Items = cfg.Items[:2]
	m := env.manager(t, cfg)

	stats, err := m.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalItems)
	assert.Zero(t, stats.Warnings)
	assert.Empty(t, env.runner.Invocations("mysqldump"))
}

func TestRunIsolatesPanickingItem(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	env.runner.Handle("mysqldump", func(command.Cmd) (command.Result, error) {
		panic("dump tool exploded")
	})
	collector := &reportCollector{}
	m := env.manager(t, testConfig(env.depot, t.TempDir()), collector)

	stats, err := m.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 2, stats.TotalItems)
	assert.True(t, env.rec.Has(logging.MsgItemPanic))
	assert.Len(t, env.runner.Invocations("rsync"), 1)
	assert.Equal(t, []string{"start maintenance.service", "stop maintenance.service"}, env.backend.Calls())
	assert.False(t, env.backend.Active("maintenance.service"))

	require.Len(t, collector.reports, 1)
	assert.Equal(t, StateFailed, collector.reports[0].Items[0].State)
	assert.Equal(t, StateSucceeded, collector.reports[0].Items[1].State)
}

func TestRunDisablesMaintenanceAfterItemErrors(t *testing.T) {
	env := newTestEnv(t)
	m := env.manager(t, testConfig(env.depot, t.TempDir()))

	stats, err := m.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Errors)
	assert.False(t, env.backend.Active("maintenance.service"))
	assert.Equal(t, []string{"start maintenance.service", "stop maintenance.service"}, env.backend.Calls())
}

func TestRunProceedsWhenMaintenanceFails(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	env.backend.FailStart("maintenance.service", errors.New("no such unit"))
	m := env.manager(t, testConfig(env.depot, t.TempDir()))

	stats, err := m.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Zero(t, stats.Errors)
	assert.Len(t, env.runner.Invocations("mysqldump"), 1)
	assert.True(t, env.rec.Has(logging.MsgMaintenanceEnableErr))
	assert.Equal(t, []string{"start maintenance.service"}, env.backend.Calls())
}

func TestRunAbortsWhenRequiredMaintenanceFails(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	env.backend.FailStart("maintenance.service", errors.New("no such unit"))
	cfg := testConfig(env.depot, t.TempDir())
	cfg.Global.Maintenance.Required = true
	m := env.manager(t, cfg)

	stats, err := m.Run(context.Background(), Options{})

	require.ErrorIs(t, err, maintenance.ErrEnableFailed)
	assert.True(t, stats.Failed())
	assert.Empty(t, env.runner.Invocations("mysqldump"))
	assert.Empty(t, env.runner.Invocations("rsync"))
}

func TestRunHonoursCancellationBetweenItems(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	ctx, cancel := context.WithCancel(context.Background())
	env.runner.Handle("mysqldump", func(cmd command.Cmd) (command.Result, error) {
		cancel()
		return writeOutput("-- orders\n")(cmd)
	})
	m := env.manager(t, testConfig(env.depot, t.TempDir()))

	stats, err := m.Run(ctx, Options{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Errors)
	assert.FileExists(t, filepath.Join(env.depot, "orders_orders.sql.zst"))
	assert.Empty(t, env.runner.Invocations("rsync"))
	assert.True(t, env.rec.Has(logging.MsgRunCancelled))
	assert.False(t, env.backend.Active("maintenance.service"))
}

func TestRunPausesItemTimer(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	env.backend.SetActive("home-sync.timer", true)
	cfg := testConfig(env.depot, t.TempDir())
	cfg.Global.Maintenance.Unit = ""
	cfg.Items[1].Timer = "home-sync"
	m := env.manager(t, cfg)

	_, err := m.Run(context.Background(), Options{Types: []string{"sync"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"stop home-sync.timer", "start home-sync.timer"}, env.backend.Calls())
}

func TestRunChownsDepotEntries(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	require.NoError(t, os.Mkdir(filepath.Join(env.depot, "lost+found"), 0700))
	env.runner.Handle("chown", func(cmd command.Cmd) (command.Result, error) {
		if filepath.Base(cmd.Args[2]) == "home" {
			return command.Result{ExitCode: 1}, errors.New("chown exited with code 1")
		}
		return command.Result{}, nil
	})
	cfg := testConfig(env.depot, t.TempDir())
	cfg.Global.Owner = "backup:backup"
	m := env.manager(t, cfg)

	stats, err := m.Run(context.Background(), Options{})

	require.NoError(t, err)
	var targets []string
	for _, call := range env.runner.Invocations("chown") {
		assert.Equal(t, []string{"-R", "backup:backup"}, call.Args[:2])
		targets = append(targets, filepath.Base(call.Args[2]))
	}
	assert.ElementsMatch(t, []string{"home", "orders_orders.sql.zst", "sha256sums.txt"}, targets)
	assert.Equal(t, 2, stats.Warnings)
	assert.True(t, env.rec.Has(logging.MsgChownFailed))
}

func TestRunObserverFailureIsWarning(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	m := env.manager(t, testConfig(env.depot, t.TempDir()), &reportCollector{err: errors.New("disk full")})

	stats, err := m.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.False(t, stats.Failed())
	assert.True(t, env.rec.Has(logging.MsgObserverFailed))
}

func TestRunRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(context.Background()))
	history := NewHistoryStore(db)
	m := env.manager(t, testConfig(env.depot, t.TempDir()), history)

	stats, err := m.Run(context.Background(), Options{})
	require.NoError(t, err)

	runs, err := history.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, stats.ID, runs[0].ID)
	assert.Equal(t, "succeeded", runs[0].Status)
	assert.Equal(t, 2, runs[0].TotalItems)
	require.Len(t, runs[0].Items, 2)
	assert.Equal(t, "orders", runs[0].Items[0].Name)
	assert.Equal(t, StateSucceeded, runs[0].Items[1].State)
}

func TestRunKeepsDumpsOfSameNamedDatabasesApart(t *testing.T) {
	env := newTestEnv(t)
	env.runner.Handle("mysqldump", writeOutput("-- server A app\n"))
	env.runner.Handle("pg_dump", writeOutput("-- server B app\n"))
	cfg := testConfig(env.depot, t.TempDir())
	cfg.Global.Compression.Type = "none"
	cfg.Items = []config.ItemSpec{
		{Name: "a", Type: "mysql", Engine: config.EngineMySQL, Databases: []string{"app"}, Host: "localhost", Port: 3306},
		{Name: "b", Type: "pgsql", Engine: config.EnginePostgreSQL, Databases: []string{"app"}, Host: "localhost", Port: 5432},
	}
	m := env.manager(t, cfg)

	stats, err := m.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Zero(t, stats.Errors)
	a, err := os.ReadFile(filepath.Join(env.depot, "a_app.sql"))
	require.NoError(t, err)
	assert.Equal(t, "-- server A app\n", string(a))
	b, err := os.ReadFile(filepath.Join(env.depot, "b_app.sql"))
	require.NoError(t, err)
	assert.Equal(t, "-- server B app\n", string(b))

	entries, err := ReadLedger(filepath.Join(env.depot, "sha256sums.txt"))
	require.NoError(t, err)
	assert.Equal(t, []LedgerEntry{
		{Digest: sha256Hex("-- server A app\n"), Name: "a_app.sql"},
		{Digest: sha256Hex("-- server B app\n"), Name: "b_app.sql"},
	}, entries)
}

func TestRunRefusesToOverwriteAnotherItemsDump(t *testing.T) {
	env := newTestEnv(t)
	env.runner.Handle("mysqldump", func(cmd command.Cmd) (command.Result, error) {
		return writeOutput("-- " + cmd.Args[1] + "\n")(cmd)
	})
	cfg := testConfig(env.depot, t.TempDir())
	cfg.Global.Compression.Type = "none"
	cfg.Items = []config.ItemSpec{
		{Name: "a_b", Type: "mysql", Engine: config.EngineMySQL, Databases: []string{"c"}, Host: "localhost", Port: 3306},
		{Name: "a", Type: "mysql", Engine: config.EngineMySQL, Databases: []string{"b_c"}, Host: "localhost", Port: 3306},
	}
	collector := &reportCollector{}
	m := env.manager(t, cfg, collector)

	stats, err := m.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
	assert.Len(t, env.runner.Invocations("mysqldump"), 1)
	data, err := os.ReadFile(filepath.Join(env.depot, "a_b_c.sql"))
	require.NoError(t, err)
	assert.Equal(t, "-- c\n", string(data))

	msg := env.rec.Find(logging.MsgDumpPathTaken)
	require.NotNil(t, msg)
	assert.Equal(t, "a", msg.Item)
	require.Len(t, collector.reports, 1)
	assert.Equal(t, StateSucceeded, collector.reports[0].Items[0].State)
	assert.Equal(t, StateFailed, collector.reports[0].Items[1].State)
}

func TestRunKeepsMessagesOfPanickingItem(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	env.runner.Handle("mysqldump", func(cmd command.Cmd) (command.Result, error) {
		if cmd.Args[1] == "broken" {
			return command.Result{ExitCode: 2}, errors.New("mysqldump exited with code 2")
		}
		panic("dump tool exploded")
	})
	cfg := testConfig(env.depot, t.TempDir())
	cfg.Items[0].Databases = []string{"broken", "orders"}
	collector := &reportCollector{}
	m := env.manager(t, cfg, collector)

	stats, err := m.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Errors)
	require.Len(t, collector.reports, 1)
	res := collector.reports[0].Items[0]
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 2, res.Statistics.Errors)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "broken")
	assert.Contains(t, res.Errors[1], "dump tool exploded")
}

func TestAbortFailsRunningItem(t *testing.T) {
	env := newTestEnv(t)
	item := NewSyncItem(config.ItemSpec{Name: "home", Type: "sync", Source: t.TempDir()}, env.deps(t, config.CompressionConfig{}))
	require.NoError(t, item.begin())
	item.report.Warn(logging.MsgSyncStats, "/home")

	res := item.abort("boom")

	assert.Equal(t, StateFailed, item.State())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.Statistics.Errors)
	assert.Equal(t, 1, res.Statistics.Warnings)
}

func TestRunWarnsAboutUnknownFilterTags(t *testing.T) {
	env := newTestEnv(t)
	env.handleTools()
	m := env.manager(t, testConfig(env.depot, t.TempDir()))

	stats, err := m.Run(context.Background(), Options{Types: []string{"databse", "sync"}})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalItems)
	assert.Equal(t, 2, stats.Warnings)
	msg := env.rec.Find(logging.MsgInvalidFilterType)
	require.NotNil(t, msg)
	assert.Equal(t, []any{"databse"}, msg.Args)
}
