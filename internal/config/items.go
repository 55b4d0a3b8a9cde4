package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ItemType is the canonical tag of a backup item variant
type ItemType string

const (
	TypeDatabase ItemType = "database"
	TypeMailbox  ItemType = "mailbox"
	TypeSync     ItemType = "sync"
	TypeWebApp   ItemType = "webapp"
)

// Web applications
const (
	AppNextcloud = "nextcloud"
	AppWordPress = "wordpress"
)

// Database engines
const (
	EngineMySQL      = "mysql"
	EnginePostgreSQL = "postgresql"
)

// AllDatabases selects every database the server reports.
const AllDatabases = "*"

type typeAlias struct {
	itemType ItemType
	engine   string
	app      string
}

var typeAliases = map[string]typeAlias{
	"database":   {itemType: TypeDatabase},
	"mysql":      {itemType: TypeDatabase, engine: EngineMySQL},
	"mariadb":    {itemType: TypeDatabase, engine: EngineMySQL},
	"postgresql": {itemType: TypeDatabase, engine: EnginePostgreSQL},
	"pgsql":      {itemType: TypeDatabase, engine: EnginePostgreSQL},
	"mailbox":    {itemType: TypeMailbox},
	"cyrus":      {itemType: TypeMailbox},
	"sync":       {itemType: TypeSync},
	"directory":  {itemType: TypeSync},
	"webapp":     {itemType: TypeWebApp},
	"nextcloud":  {itemType: TypeWebApp, app: AppNextcloud},
	"wordpress":  {itemType: TypeWebApp, app: AppWordPress},
}

// NormalizeType resolves a configured type tag, case-insensitively, to its
// canonical item type.
func NormalizeType(tag string) (ItemType, bool) {
	alias, ok := typeAliases[strings.ToLower(strings.TrimSpace(tag))]
	return alias.itemType, ok
}

// ItemSpec is the immutable description of one configured backup item
type ItemSpec struct {
	Name    string `yaml:"name" json:"name" validate:"required"`
	Type    string `yaml:"type" json:"type" validate:"required"`
	Enabled *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Timer names a systemd timer that is stopped while the item runs.
	Timer string `yaml:"timer,omitempty" json:"timer,omitempty"`

	// Database items
	Engine    string   `yaml:"engine,omitempty" json:"engine,omitempty" validate:"omitempty,oneof=mysql postgresql"`
	Databases []string `yaml:"databases,omitempty" json:"databases,omitempty"`
	User      string   `yaml:"user,omitempty" json:"user,omitempty"`
	Password  string   `yaml:"password,omitempty" json:"password,omitempty"`
	Host      string   `yaml:"host,omitempty" json:"host,omitempty"`
	Port      int      `yaml:"port,omitempty" json:"port,omitempty" validate:"gte=0,lte=65535"`

	// Sync items
	Source      string   `yaml:"source,omitempty" json:"source,omitempty"`
	Destination string   `yaml:"destination,omitempty" json:"destination,omitempty"`
	Exclude     []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	// Mailbox items
	Service     string   `yaml:"service,omitempty" json:"service,omitempty"`
	ConfigDir   string   `yaml:"config_dir,omitempty" json:"config_dir,omitempty"`
	Directories []string `yaml:"directories,omitempty" json:"directories,omitempty"`

	// Web application items. Directories lists the application roots;
	// ConfigFile is relative to one of them unless absolute. WebUser runs
	// the maintenance command and defaults to the owner of the config file.
	App        string `yaml:"app,omitempty" json:"app,omitempty" validate:"omitempty,oneof=nextcloud wordpress"`
	ConfigFile string `yaml:"config_file,omitempty" json:"config_file,omitempty"`
	WebUser    string `yaml:"web_user,omitempty" json:"web_user,omitempty"`
}

// IsEnabled reports whether the item takes part in runs. Items are enabled
// unless explicitly switched off.
func (s ItemSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ItemType returns the canonical type of the item.
func (s ItemSpec) ItemType() (ItemType, bool) {
	return NormalizeType(s.Type)
}

func (s *ItemSpec) normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	s.Engine = strings.ToLower(strings.TrimSpace(s.Engine))
	s.Host = strings.TrimSpace(s.Host)
	s.Timer = strings.TrimSpace(s.Timer)

	alias, ok := typeAliases[s.Type]
	if !ok {
		return
	}
	if alias.itemType == TypeWebApp {
		s.normalizeWebApp(alias.app)
		return
	}
	if alias.itemType != TypeDatabase {
		return
	}
	switch s.Engine {
	case "":
		s.Engine = alias.engine
		if s.Engine == "" {
			s.Engine = EngineMySQL
		}
	case "mariadb":
		s.Engine = EngineMySQL
	case "pgsql", "postgres":
		s.Engine = EnginePostgreSQL
	}
	if s.Host == "" {
		s.Host = "localhost"
	}
	if s.Port == 0 {
		s.Port = s.DefaultPort()
	}
}

func (s *ItemSpec) normalizeWebApp(app string) {
	s.App = strings.ToLower(strings.TrimSpace(s.App))
	if s.App == "" {
		s.App = app
	}
	s.ConfigFile = strings.TrimSpace(s.ConfigFile)
	if s.ConfigFile == "" {
		s.ConfigFile = DefaultConfigFile(s.App)
	}
	s.WebUser = strings.TrimSpace(s.WebUser)
}

// DefaultConfigFile returns where an application keeps its database
// settings, relative to its root directory.
func DefaultConfigFile(app string) string {
	switch app {
	case AppNextcloud:
		return "config/config.php"
	case AppWordPress:
		return "wp-config.php"
	}
	return ""
}

// DefaultPort returns the standard port of the item's database engine.
func (s ItemSpec) DefaultPort() int {
	if s.Engine == EnginePostgreSQL {
		return 5432
	}
	return 3306
}

// Validate checks the type-specific fields of known item types.
func (s ItemSpec) Validate() error {
	itemType, ok := s.ItemType()
	if !ok {
		return nil
	}
	if err := s.ValidatePaths(); err != nil {
		return err
	}

	switch itemType {
	case TypeDatabase:
		if len(s.Databases) == 0 {
			return fmt.Errorf("at least one database is required")
		}
		for _, db := range s.Databases {
			if db == AllDatabases {
				continue
			}
			if strings.TrimSpace(db) == "" || strings.ContainsAny(db, `/\`) {
				return fmt.Errorf("invalid database name %q", db)
			}
		}
	case TypeSync:
		if strings.TrimSpace(s.Source) == "" {
			return fmt.Errorf("source is required")
		}
	case TypeMailbox:
		if s.ConfigDir == "" && len(s.Directories) == 0 {
			return fmt.Errorf("config_dir or directories is required")
		}
	case TypeWebApp:
		if s.App != AppNextcloud && s.App != AppWordPress {
			return fmt.Errorf("app must be one of %s, %s", AppNextcloud, AppWordPress)
		}
		if len(s.Directories) == 0 {
			return fmt.Errorf("at least one directory is required")
		}
		if s.ConfigFile == "" {
			return fmt.Errorf("config_file is required")
		}
	}

	return nil
}

// SyncDestination returns the depot subdirectory a sync item mirrors into.
func (s ItemSpec) SyncDestination() string {
	if strings.TrimSpace(s.Destination) != "" {
		return s.Destination
	}
	return s.Name
}

// ValidatePaths checks the parts of the item that become depot paths. The
// name names dump files and directories, so it must be a single path
// element; a sync destination must be a subdirectory of the depot, never
// the depot itself.
func (s ItemSpec) ValidatePaths() error {
	if s.Name == "" || s.Name == "." || s.Name == ".." || strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("item name %q can not be used as a depot path", s.Name)
	}
	if itemType, _ := s.ItemType(); itemType == TypeSync {
		dest := filepath.Clean(s.SyncDestination())
		if dest == "." || !filepath.IsLocal(dest) {
			return fmt.Errorf("destination must be a subdirectory of the depot, got %q", s.Destination)
		}
	}
	return nil
}

// DepotDir returns the depot subdirectory the item mirrors into, if any.
func (s ItemSpec) DepotDir() string {
	switch itemType, _ := s.ItemType(); itemType {
	case TypeSync:
		return filepath.Clean(s.SyncDestination())
	case TypeMailbox, TypeWebApp:
		return s.Name
	}
	return ""
}
