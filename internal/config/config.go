package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no configuration file is given on the command line.
const DefaultConfigPath = "/etc/hostbackup/config.json"

// Config represents one backup run configuration
type Config struct {
	Global  GlobalConfig  `yaml:"global" json:"global"`
	Items   []ItemSpec    `yaml:"items" json:"items" validate:"dive"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// GlobalConfig contains settings shared by all items
type GlobalConfig struct {
	Depot       string            `yaml:"depot" json:"depot" validate:"required"`
	Owner       string            `yaml:"owner" json:"owner"`
	TempDir     string            `yaml:"temp_dir" json:"temp_dir"`
	Ledger      string            `yaml:"ledger" json:"ledger"`
	Compression CompressionConfig `yaml:"compression" json:"compression"`
	Maintenance MaintenanceConfig `yaml:"maintenance" json:"maintenance"`
	Services    ServicesConfig    `yaml:"services" json:"services"`
}

// CompressionConfig controls dump compression
// Type values: "zstd", "gzip", "none"
type CompressionConfig struct {
	Type  string `yaml:"type" json:"type" validate:"omitempty,oneof=zstd gzip none"`
	Level int    `yaml:"level,omitempty" json:"level,omitempty" validate:"gte=0,lte=22"`
}

// MaintenanceConfig describes the unit backing maintenance mode.
// An empty Unit disables maintenance handling.
type MaintenanceConfig struct {
	Unit           string `yaml:"unit" json:"unit"`
	Action         string `yaml:"action" json:"action" validate:"omitempty,oneof=start stop"`
	WaitUnit       string `yaml:"wait_unit" json:"wait_unit"`
	Required       bool   `yaml:"required" json:"required"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gte=0"`
	PollSeconds    int    `yaml:"poll_seconds" json:"poll_seconds" validate:"gte=0"`
}

// ServicesConfig contains settings for systemd unit control
type ServicesConfig struct {
	Backend        string `yaml:"backend" json:"backend" validate:"omitempty,oneof=systemctl dbus"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gte=0"`
	PollSeconds    int    `yaml:"poll_seconds" json:"poll_seconds" validate:"gte=0"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format" validate:"omitempty,oneof=json text"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Journal    bool   `yaml:"journal" json:"journal"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration every file is layered on.
func Default() *Config {
	return &Config{
		Global: GlobalConfig{
			Ledger: "sha256sums.txt",
			Compression: CompressionConfig{
				Type:  "zstd",
				Level: 3,
			},
			Maintenance: MaintenanceConfig{
				Action:         "start",
				TimeoutSeconds: 300,
				PollSeconds:    10,
			},
			Services: ServicesConfig{
				Backend:        "systemctl",
				TimeoutSeconds: 30,
				PollSeconds:    1,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Load reads, normalizes and validates a configuration file. JSON documents
// must contain an object at their root; .yaml and .yml files are decoded as YAML.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("configuration file %s", path)
		}
		return nil, fmt.Errorf("failed to access config file: %w", err)
	}
	if info.IsDir() {
		return nil, errors.NotValidf("configuration file %s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	default:
		err = decodeJSON(data, cfg)
	}
	if err != nil {
		return nil, errors.NewNotValid(err, fmt.Sprintf("failed to parse config file %s", path))
	}

	cfg.applyEnv()
	cfg.normalize(path)

	if err := cfg.Validate(); err != nil {
		return nil, errors.NewNotValid(err, "invalid configuration")
	}

	return cfg, nil
}

func decodeJSON(data []byte, cfg *Config) error {
	var root json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(root)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("document does not contain an object as root")
	}
	return json.Unmarshal(data, cfg)
}

func decodeYAML(data []byte, cfg *Config) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("document does not contain a mapping as root")
	}
	return doc.Content[0].Decode(cfg)
}

func (c *Config) applyEnv() {
	if depot := os.Getenv("HOSTBACKUP_DEPOT"); depot != "" {
		c.Global.Depot = depot
	}

	if logLevel := os.Getenv("HOSTBACKUP_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
}

func (c *Config) normalize(configPath string) {
	baseDir := filepath.Dir(configPath)
	if absBase, err := filepath.Abs(baseDir); err == nil {
		baseDir = absBase
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(baseDir, trimmed))
	}

	c.Global.Depot = resolvePath(c.Global.Depot)
	c.Global.TempDir = resolvePath(c.Global.TempDir)
	c.Global.Owner = strings.TrimSpace(c.Global.Owner)
	c.Global.Compression.Type = strings.ToLower(strings.TrimSpace(c.Global.Compression.Type))
	c.Global.Maintenance.Unit = strings.TrimSpace(c.Global.Maintenance.Unit)
	c.Global.Maintenance.Action = strings.ToLower(strings.TrimSpace(c.Global.Maintenance.Action))
	c.Global.Services.Backend = strings.ToLower(strings.TrimSpace(c.Global.Services.Backend))
	if strings.TrimSpace(c.Global.Ledger) == "" {
		c.Global.Ledger = "sha256sums.txt"
	}

	for i := range c.Items {
		c.Items[i].normalize()
	}

	if c.Logging.File != "" {
		c.Logging.File = resolvePath(c.Logging.File)
	}
}

// Validate checks if the configuration is valid. Unknown item types are not
// an error here; they are dropped with a warning when a run selects its items.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if strings.ContainsRune(c.Global.Ledger, filepath.Separator) {
		return fmt.Errorf("ledger must be a file name inside the depot, got %q", c.Global.Ledger)
	}

	seen := make(map[string]bool, len(c.Items))
	for i := range c.Items {
		item := &c.Items[i]
		if seen[item.Name] {
			return fmt.Errorf("duplicate item name %q", item.Name)
		}
		seen[item.Name] = true

		if err := item.Validate(); err != nil {
			return fmt.Errorf("item %q: %w", item.Name, err)
		}
	}

	return c.validateDepotDirs()
}

// validateDepotDirs rejects items mirroring into the same or nested depot
// directories, since each mirror deletes what its source does not have.
func (c *Config) validateDepotDirs() error {
	owners := make(map[string]string)
	for _, item := range c.Items {
		dir := item.DepotDir()
		if dir == "" {
			continue
		}
		for other, owner := range owners {
			if dir == other || strings.HasPrefix(dir, other+string(filepath.Separator)) || strings.HasPrefix(other, dir+string(filepath.Separator)) {
				return fmt.Errorf("item %q: depot directory %q overlaps %q of item %q", item.Name, dir, other, owner)
			}
		}
		owners[dir] = item.Name
	}
	return nil
}

// ParseTypeFilter splits a comma-separated type list, dropping empty entries.
func ParseTypeFilter(value string) []string {
	var types []string
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed == "" {
			continue
		}
		types = append(types, trimmed)
	}
	return types
}
