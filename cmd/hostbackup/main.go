package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/TheGojiOG/hostbackup/internal/backup"
	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/database"
	"github.com/TheGojiOG/hostbackup/internal/logging"
	"github.com/TheGojiOG/hostbackup/internal/metrics"
	"github.com/TheGojiOG/hostbackup/internal/service"
)

var version = "dev"

// Process exit codes
const (
	exitOK     = 0
	exitDepot  = 1
	exitItems  = 2
	exitConfig = 6
)

type options struct {
	configPath  string
	types       string
	logLevel    string
	logFormat   string
	logFile     string
	journal     bool
	metricsFile string
	historyDB   string
	showVersion bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	f := gnuflag.NewFlagSet("hostbackup", gnuflag.ContinueOnError)
	f.SetOutput(stderr)
	f.StringVar(&opts.configPath, "c", config.DefaultConfigPath, "Configuration file")
	f.StringVar(&opts.configPath, "config", config.DefaultConfigPath, "")
	f.StringVar(&opts.types, "t", "", "Comma-separated list of item types to back up")
	f.StringVar(&opts.types, "type", "", "")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error, critical)")
	f.StringVar(&opts.logFormat, "log-format", "", "Log format (text or json)")
	f.StringVar(&opts.logFile, "log-file", "", "Also write the log to this file")
	f.BoolVar(&opts.journal, "journal", false, "Also send the log to the systemd journal")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format")
	f.StringVar(&opts.historyDB, "history-db", "", "Record the run in this SQLite database")
	f.BoolVar(&opts.showVersion, "version", false, "Print the version and exit")

	if err := f.Parse(true, args); err != nil {
		return nil, err
	}
	if len(f.Args()) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", f.Args())
	}
	return opts, nil
}

// apply layers the command line over the configuration file.
func (o *options) apply(cfg *config.Config) {
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if o.logFile != "" {
		cfg.Logging.File = o.logFile
	}
	if o.journal {
		cfg.Logging.Journal = true
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, gnuflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, "hostbackup", version)
		return exitOK
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		early, _ := logging.New(config.Default().Logging, stderr)
		reportConfigError(logging.NewSlogReporter(early), opts.configPath, err)
		return exitConfig
	}
	opts.apply(cfg)

	logger, err := logging.Init(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "failed to set up logging: %v\n", err)
	}
	defer logging.Close()
	rep := logging.NewSlogReporter(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := command.NewExecRunner()
	backend, closeBackend, err := newBackend(cfg.Global.Services.Backend, runner)
	if err != nil {
		rep.Crit(logging.MsgServiceBackend, err)
		return exitDepot
	}
	defer closeBackend()

	services, err := service.NewController(service.ControllerConfig{
		Backend:      backend,
		Reporter:     rep,
		Timeout:      time.Duration(cfg.Global.Services.TimeoutSeconds) * time.Second,
		PollInterval: time.Duration(cfg.Global.Services.PollSeconds) * time.Second,
	})
	if err != nil {
		rep.Crit(logging.MsgServiceBackend, err)
		return exitDepot
	}

	observers, closeObservers := buildObservers(ctx, opts, logger)
	defer closeObservers()

	manager, err := backup.NewManager(backup.ManagerConfig{
		Config:    cfg,
		Runner:    runner,
		Services:  services,
		Reporter:  rep,
		Lister:    backup.NewServerLister(runner, cfg.Global.TempDir),
		Observers: observers,
	})
	if err != nil {
		rep.Crit(logging.MsgConfigInvalid, opts.configPath, err)
		return exitConfig
	}

	stats, err := manager.Run(ctx, backup.Options{Types: config.ParseTypeFilter(opts.types)})
	return exitCode(stats, err)
}

func reportConfigError(rep logging.Reporter, path string, err error) {
	switch {
	case errors.Is(err, errors.NotFound):
		rep.Crit(logging.MsgConfigNotFound, path)
	case errors.Is(err, errors.NotValid):
		rep.Crit(logging.MsgConfigInvalid, path, err)
	default:
		rep.Crit(logging.MsgConfigUnreadable, path, err)
	}
}

func newBackend(name string, runner command.Runner) (service.Backend, func(), error) {
	if name == "dbus" {
		backend, err := service.NewDBusBackend()
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { backend.Close() }, nil
	}
	return service.NewSystemctlBackend(runner), func() {}, nil
}

// buildObservers opens the optional history database and metrics file. A
// history database that cannot be opened only costs the record of this run.
func buildObservers(ctx context.Context, opts *options, logger *slog.Logger) ([]backup.RunObserver, func()) {
	var observers []backup.RunObserver
	closeFn := func() {}

	if opts.historyDB != "" {
		db, err := database.NewDB(opts.historyDB)
		if err == nil {
			if err = db.Migrate(ctx); err != nil {
				db.Close()
			}
		}
		if err != nil {
			logger.Warn("History database unavailable, run will not be recorded", "path", opts.historyDB, "error", err)
		} else {
			observers = append(observers, backup.NewHistoryStore(db))
			closeFn = func() { db.Close() }
		}
	}

	if opts.metricsFile != "" {
		observers = append(observers, metrics.NewTextfileWriter(opts.metricsFile))
	}
	return observers, closeFn
}

// exitCode maps the outcome of a run onto the process exit status. The
// status is non-zero exactly when the run reported errors.
func exitCode(stats backup.RunStatistics, err error) int {
	switch {
	case errors.Is(err, errors.NotFound):
		return exitDepot
	case errors.Is(err, errors.NotValid):
		return exitConfig
	case stats.Errors > 0 || err != nil:
		return exitItems
	}
	return exitOK
}
