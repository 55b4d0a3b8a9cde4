package backup

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/logging"
	"github.com/TheGojiOG/hostbackup/internal/maintenance"
)

var errDumpFailed = errors.New("database dump failed")

// WebAppItem backs up a PHP web application: it switches the application
// into its own maintenance mode, dumps the database named in the
// application's configuration file and mirrors the application directories.
type WebAppItem struct {
	itemBase
	runner command.Runner
	dumper dumper
}

func NewWebAppItem(spec config.ItemSpec, deps Deps) *WebAppItem {
	return &WebAppItem{
		itemBase: newItemBase(spec, config.TypeWebApp, deps),
		runner:   deps.Runner,
		dumper:   newDumper(deps),
	}
}

// site is where an application was found on disk.
type site struct {
	root       string
	configPath string
}

func (w *WebAppItem) Run(ctx context.Context, depot string) Result {
	if err := w.begin(); err != nil {
		return w.rejected(err)
	}

	s, ok := w.locate()
	if !ok {
		return w.finish()
	}

	db, err := readAppDatabase(w.spec.App, s.configPath)
	if err != nil {
		w.report.Crit(logging.MsgWebAppConfig, s.configPath, err)
		return w.finish()
	}

	ctrl := maintenance.NewController(w.toggle(s), w.report, false)
	_ = ctrl.Scope(ctx, func(ctx context.Context) error {
		if db.engine == "" {
			w.report.Info(logging.MsgWebAppNoDatabase, db.kind)
		} else if !w.dumper.dump(ctx, &w.itemBase, db.connection(w.spec), depot, db.name) {
			w.report.Warn(logging.MsgWebAppSyncSkipped)
			return errDumpFailed
		}
		w.mirrorDirectories(ctx, w.runner, w.spec.Directories, filepath.Join(depot, w.spec.Name), true)
		return nil
	})

	return w.finish()
}

// locate checks the application directories and finds the configuration
// file, either absolute or relative to one of the directories.
func (w *WebAppItem) locate() (site, bool) {
	var s site
	for _, dir := range w.spec.Directories {
		dir = strings.TrimSuffix(dir, "/")
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			w.report.Crit(logging.MsgSyncSource, dir)
			return s, false
		}
		if s.root == "" {
			s.root = dir
		}
		if s.configPath == "" && !filepath.IsAbs(w.spec.ConfigFile) {
			candidate := filepath.Join(dir, w.spec.ConfigFile)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				s.root, s.configPath = dir, candidate
			}
		}
	}

	if filepath.IsAbs(w.spec.ConfigFile) {
		if info, err := os.Stat(w.spec.ConfigFile); err == nil && !info.IsDir() {
			s.configPath = w.spec.ConfigFile
		}
	}
	if s.configPath == "" {
		w.report.Crit(logging.MsgWebAppConfigMissing, w.spec.ConfigFile)
		return s, false
	}
	return s, true
}

// toggle builds the maintenance command of the application, run as the
// configured web user or the owner of the configuration file.
func (w *WebAppItem) toggle(s site) maintenance.Toggle {
	user := w.spec.WebUser
	if user == "" {
		owner, err := fileOwner(s.configPath)
		if err != nil {
			w.report.Warn(logging.MsgWebAppUser, s.configPath, err)
			return maintenance.NopToggle{}
		}
		user = owner
	}

	sudo := func(args ...string) command.Cmd {
		return command.Cmd{Name: "sudo", Args: append([]string{"-u", user}, args...), Dir: s.root}
	}
	if w.spec.App == config.AppWordPress {
		return &maintenance.CommandToggle{
			Runner: w.runner,
			Name:   "wp maintenance-mode",
			On:     sudo("wp", "maintenance-mode", "activate"),
			Off:    sudo("wp", "maintenance-mode", "deactivate"),
		}
	}
	return &maintenance.CommandToggle{
		Runner: w.runner,
		Name:   "occ maintenance:mode",
		On:     sudo("php", "./occ", "maintenance:mode", "--on"),
		Off:    sudo("php", "./occ", "maintenance:mode", "--off"),
	}
}

// appDatabase holds the connection settings read from an application's
// configuration. An empty engine means the database lives in a file inside
// the application directories.
type appDatabase struct {
	kind     string
	engine   string
	name     string
	user     string
	password string
	host     string
	port     int
}

// connection returns a database item spec for the dump, named after the
// web application item.
func (db appDatabase) connection(item config.ItemSpec) config.ItemSpec {
	spec := config.ItemSpec{
		Name:      item.Name,
		Type:      string(config.TypeDatabase),
		Engine:    db.engine,
		Databases: []string{db.name},
		User:      db.user,
		Password:  db.password,
		Host:      db.host,
		Port:      db.port,
	}
	if spec.Host == "" {
		spec.Host = "localhost"
	}
	if spec.Port == 0 {
		spec.Port = spec.DefaultPort()
	}
	return spec
}

func phpArrayPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)["']` + key + `["']\s*=>\s*["']([^"']+)["']`)
}

func phpDefinePattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)define\s*\(\s*["']` + key + `["']\s*,\s*["']([^"']+)["']\s*\)\s*;`)
}

var appConfigPatterns = map[string]map[string]*regexp.Regexp{
	config.AppNextcloud: {
		"type":     phpArrayPattern("dbtype"),
		"name":     phpArrayPattern("dbname"),
		"user":     phpArrayPattern("dbuser"),
		"password": phpArrayPattern("dbpassword"),
		"host":     phpArrayPattern("dbhost"),
		"port":     phpArrayPattern("dbport"),
	},
	config.AppWordPress: {
		"name":     phpDefinePattern("DB_NAME"),
		"user":     phpDefinePattern("DB_USER"),
		"password": phpDefinePattern("DB_PASSWORD"),
		"host":     phpDefinePattern("DB_HOST"),
	},
}

// readAppDatabase extracts the database settings from the PHP configuration
// file of app. The first occurrence of each setting wins.
func readAppDatabase(app, path string) (appDatabase, error) {
	patterns, ok := appConfigPatterns[app]
	if !ok {
		return appDatabase{}, errors.NotSupportedf("web application %q", app)
	}

	f, err := os.Open(path)
	if err != nil {
		return appDatabase{}, err
	}
	defer f.Close()

	values := make(map[string]string, len(patterns))
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(values) < len(patterns) {
		line := scanner.Text()
		for key, pattern := range patterns {
			if _, found := values[key]; found {
				continue
			}
			if m := pattern.FindStringSubmatch(line); m != nil {
				values[key] = strings.TrimSpace(m[1])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return appDatabase{}, err
	}

	db := appDatabase{
		kind:     values["type"],
		name:     values["name"],
		user:     values["user"],
		password: values["password"],
	}
	if app == config.AppWordPress {
		db.kind = "mysql"
	}
	switch db.kind {
	case "sqlite", "sqlite3":
		return db, nil
	case "mysql":
		db.engine = config.EngineMySQL
	case "pgsql":
		db.engine = config.EnginePostgreSQL
	default:
		return appDatabase{}, errors.NotValidf("database type %q", db.kind)
	}

	if db.name == "" || strings.ContainsAny(db.name, `/\`) {
		return appDatabase{}, errors.NotValidf("database name %q", db.name)
	}
	if db.host, db.port, err = splitDatabaseHost(values["host"]); err != nil {
		return appDatabase{}, err
	}
	if port := values["port"]; port != "" {
		if db.port, err = strconv.Atoi(port); err != nil || db.port < 0 || db.port > 65535 {
			return appDatabase{}, errors.NotValidf("database port %q", port)
		}
	}
	return db, nil
}

// splitDatabaseHost separates the "host:port" and "host:/socket" forms PHP
// applications accept as database host.
func splitDatabaseHost(value string) (string, int, error) {
	host, rest, found := strings.Cut(value, ":")
	if !found || rest == "" {
		return value, 0, nil
	}
	if strings.HasPrefix(rest, "/") {
		return rest, 0, nil
	}
	port, err := strconv.Atoi(rest)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid database host %q", value)
	}
	return host, port, nil
}
