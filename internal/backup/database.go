package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
	"github.com/TheGojiOG/hostbackup/internal/logging"
)

// DatabaseItem dumps one or more databases of a MySQL/MariaDB or
// PostgreSQL server into the depot.
type DatabaseItem struct {
	itemBase
	dumper dumper
	lister DatabaseLister
}

// dumper writes database dumps into the depot on behalf of an item.
type dumper struct {
	runner  command.Runner
	post    *PostProcessor
	tempDir string
	claims  *PathClaims
}

func newDumper(deps Deps) dumper {
	return dumper{runner: deps.Runner, post: deps.Post, tempDir: deps.TempDir, claims: deps.Claims}
}

func NewDatabaseItem(spec config.ItemSpec, deps Deps) (*DatabaseItem, error) {
	switch spec.Engine {
	case config.EngineMySQL, config.EnginePostgreSQL:
	default:
		return nil, errors.NotSupportedf("database engine %q", spec.Engine)
	}
	return &DatabaseItem{
		itemBase: newItemBase(spec, config.TypeDatabase, deps),
		dumper:   newDumper(deps),
		lister:   deps.Lister,
	}, nil
}

func (d *DatabaseItem) Run(ctx context.Context, depot string) Result {
	if err := d.begin(); err != nil {
		return d.rejected(err)
	}

	for _, name := range d.databases(ctx) {
		d.dumper.dump(ctx, &d.itemBase, d.spec, depot, name)
	}
	return d.finish()
}

// databases expands the configured list; "*" is replaced by every
// database the server reports.
func (d *DatabaseItem) databases(ctx context.Context) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, name := range d.spec.Databases {
		if name != config.AllDatabases {
			add(name)
			continue
		}
		all, err := d.lister.ListDatabases(ctx, d.spec)
		if err != nil {
			d.report.Crit(logging.MsgDatabaseList, err)
			continue
		}
		for _, n := range all {
			add(n)
		}
	}
	return names
}

// dump writes database name of the connection in spec to the depot and
// records it as an artifact of item. A failed dump is reported as critical.
func (d dumper) dump(ctx context.Context, item *itemBase, spec config.ItemSpec, depot, name string) bool {
	start := item.clock.Now()
	item.report.Info(logging.MsgDumpStart, name)

	target := filepath.Join(depot, DumpFileName(spec.Name, name))
	if owner, ok := d.claims.Claim(target, spec.Name); !ok {
		item.report.Crit(logging.MsgDumpPathTaken, name, target, owner)
		return false
	}

	credentials, err := writeCredentials(d.tempDir, spec, name)
	if err != nil {
		item.report.Crit(logging.MsgDumpTempConfig, name, err)
		return false
	}
	defer os.Remove(credentials)

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		item.report.Crit(logging.MsgDumpOpenFile, target, err)
		return false
	}

	cmd := dumpCommand(spec, name, credentials)
	cmd.Stdout = out
	_, err = d.runner.Run(ctx, cmd)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(target)
		item.report.Crit(logging.MsgDumpFailed, name, err)
		return false
	}

	var size int64
	if info, err := os.Stat(target); err == nil {
		size = info.Size()
	}
	item.report.Info(logging.MsgDumpFinished, name, logging.Size(size), item.elapsedMillis(start))

	item.addArtifact(d.post.Process(target, item.report))
	return true
}

// DumpFileName names the raw dump of one database of an item.
func DumpFileName(item, database string) string {
	return item + "_" + database + ".sql"
}

func dumpCommand(spec config.ItemSpec, database, credentials string) command.Cmd {
	if spec.Engine == config.EnginePostgreSQL {
		args := []string{"--no-password", "--clean", "--if-exists", "--create"}
		args = append(args, "--host", spec.Host, "--port", strconv.Itoa(spec.Port))
		if spec.User != "" {
			args = append(args, "--username", spec.User)
		}
		args = append(args, database)
		return command.Cmd{Name: "pg_dump", Args: args, Env: []string{"PGPASSFILE=" + credentials}}
	}
	return command.Cmd{Name: "mysqldump", Args: []string{"--defaults-file=" + credentials, database}}
}

// writeCredentials stores the connection secrets in a file only the
// current user can read: a [client] option file for MySQL or a passfile
// for PostgreSQL.
func writeCredentials(dir string, spec config.ItemSpec, database string) (string, error) {
	f, err := os.CreateTemp(dir, "hostbackup-*.cnf")
	if err != nil {
		return "", fmt.Errorf("failed to create credentials file: %w", err)
	}
	path := f.Name()

	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to restrict credentials file: %w", err)
	}

	var content string
	if spec.Engine == config.EnginePostgreSQL {
		content = pgPassLine(spec, database)
	} else {
		content = mysqlOptionFile(spec)
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write credentials file: %w", err)
	}
	return path, nil
}

func mysqlOptionFile(spec config.ItemSpec) string {
	var b strings.Builder
	b.WriteString("[client]\n")
	fmt.Fprintf(&b, "user=%s\n", mysqlQuote(spec.User))
	fmt.Fprintf(&b, "password=%s\n", mysqlQuote(spec.Password))
	if strings.HasPrefix(spec.Host, "/") {
		fmt.Fprintf(&b, "socket=%s\n", mysqlQuote(spec.Host))
		return b.String()
	}
	if spec.Host != "" && spec.Host != "localhost" {
		fmt.Fprintf(&b, "host=%s\n", mysqlQuote(spec.Host))
	}
	if spec.Port != 0 && spec.Port != 3306 {
		fmt.Fprintf(&b, "port=%d\n", spec.Port)
	}
	return b.String()
}

func mysqlQuote(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return `"` + value + `"`
}

func pgPassLine(spec config.ItemSpec, database string) string {
	escape := strings.NewReplacer(`\`, `\\`, `:`, `\:`)
	fields := []string{spec.Host, strconv.Itoa(spec.Port), database, spec.User, spec.Password}
	for i, field := range fields {
		if field == "" {
			field = "*"
		} else {
			field = escape.Replace(field)
		}
		fields[i] = field
	}
	return strings.Join(fields, ":") + "\n"
}
