package backup

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/TheGojiOG/hostbackup/internal/command"
	"github.com/TheGojiOG/hostbackup/internal/config"
)

// DatabaseLister enumerates the databases of a server.
type DatabaseLister interface {
	ListDatabases(ctx context.Context, spec config.ItemSpec) ([]string, error)
}

var mysqlSystemSchemas = []string{"information_schema", "performance_schema", "sys"}

// ServerLister asks PostgreSQL servers over a pgx connection and MySQL
// servers through the mysql client.
type ServerLister struct {
	runner  command.Runner
	tempDir string
}

func NewServerLister(runner command.Runner, tempDir string) *ServerLister {
	return &ServerLister{runner: runner, tempDir: tempDir}
}

func (l *ServerLister) ListDatabases(ctx context.Context, spec config.ItemSpec) ([]string, error) {
	if spec.Engine == config.EnginePostgreSQL {
		return l.listPostgres(ctx, spec)
	}
	return l.listMySQL(ctx, spec)
}

func (l *ServerLister) listPostgres(ctx context.Context, spec config.ItemSpec) ([]string, error) {
	cfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to build connection config: %w", err)
	}
	cfg.Host = spec.Host
	cfg.Port = uint16(spec.Port)
	cfg.Database = "postgres"
	if spec.User != "" {
		cfg.User = spec.User
	}
	if spec.Password != "" {
		cfg.Password = spec.Password
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", spec.Host, err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, "SELECT datname FROM pg_database WHERE NOT datistemplate AND datallowconn ORDER BY datname")
	if err != nil {
		return nil, fmt.Errorf("failed to query databases: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read databases: %w", err)
	}
	return names, nil
}

func (l *ServerLister) listMySQL(ctx context.Context, spec config.ItemSpec) ([]string, error) {
	credentials, err := writeCredentials(l.tempDir, spec, "")
	if err != nil {
		return nil, err
	}
	defer os.Remove(credentials)

	res, err := l.runner.Run(ctx, command.Cmd{
		Name: "mysql",
		Args: []string{"--defaults-file=" + credentials, "--batch", "--skip-column-names", "--execute", "SHOW DATABASES"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query databases: %w", err)
	}
	return parseDatabaseList(res.Stdout), nil
}

func parseDatabaseList(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || slices.Contains(mysqlSystemSchemas, name) {
			continue
		}
		names = append(names, name)
	}
	return names
}
