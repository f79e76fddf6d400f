package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/addonsync/pkg/ignore"
	"github.com/fulmenhq/addonsync/pkg/safeio"
	"github.com/spf13/viper"
)

// FileName is the project-level configuration file looked up in the project root.
const FileName = ".addonsync"

// Config holds all configuration for addonsync
type Config struct {
	Manifest    ManifestConfig    `mapstructure:"manifest"`
	Index       IndexConfig       `mapstructure:"index"`
	Ignore      IgnoreConfig      `mapstructure:"ignore"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Watch       WatchConfig       `mapstructure:"watch"`
}

// ManifestConfig configures the declarative manifest registry
type ManifestConfig struct {
	Filename   string   `mapstructure:"filename"`
	ListKey    string   `mapstructure:"list_key"`
	Extensions []string `mapstructure:"extensions"`
	Indent     string   `mapstructure:"indent"`
	// Routes send matching entries to another list key (e.g. demo/** -> demo).
	Routes        []Route `mapstructure:"routes"`
	RenameInPlace bool    `mapstructure:"rename_in_place"`
}

// Route maps a doublestar pattern over manifest-relative paths to a list key
type Route struct {
	Pattern string `mapstructure:"pattern"`
	Key     string `mapstructure:"key"`
}

// IndexConfig configures the package index registry
type IndexConfig struct {
	Filename        string `mapstructure:"filename"`
	ModuleExtension string `mapstructure:"module_extension"`
	// CreateMissing selects the relaxed policy: adding a module creates an empty index.
	CreateMissing bool `mapstructure:"create_missing"`
}

// IgnoreConfig configures the path denylist
type IgnoreConfig struct {
	Segments     []string `mapstructure:"segments"`
	Patterns     []string `mapstructure:"patterns"`
	UseGitignore bool     `mapstructure:"use_gitignore"`
}

// MaintenanceConfig configures the debounced maintenance script
type MaintenanceConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Script         string        `mapstructure:"script"`
	Shell          string        `mapstructure:"shell"`
	RestartCommand []string      `mapstructure:"restart_command"`
	Delay          time.Duration `mapstructure:"delay"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// WatchConfig configures the file-system event feed
type WatchConfig struct {
	BatchWindow time.Duration `mapstructure:"batch_window"`
}

var defaultConfig = Config{
	Manifest: ManifestConfig{
		Filename:   "__manifest__.py",
		ListKey:    "data",
		Extensions: []string{".xml"},
		Indent:     "        ",
		Routes:     []Route{},
	},
	Index: IndexConfig{
		Filename:        "__init__.py",
		ModuleExtension: ".py",
		CreateMissing:   true,
	},
	Ignore: IgnoreConfig{
		Segments:     ignore.DefaultSegments,
		Patterns:     []string{},
		UseGitignore: true,
	},
	Maintenance: MaintenanceConfig{
		Enabled:        true,
		Script:         "set_permissions.sh",
		Shell:          "sh",
		RestartCommand: []string{},
		Delay:          time.Second,
		Timeout:        2 * time.Minute,
	},
	Watch: WatchConfig{
		BatchWindow: 75 * time.Millisecond,
	},
}

// Default returns a copy of the built-in configuration
func Default() *Config {
	c := defaultConfig
	c.Manifest.Extensions = append([]string(nil), defaultConfig.Manifest.Extensions...)
	c.Ignore.Segments = append([]string(nil), defaultConfig.Ignore.Segments...)
	return &c
}

// NewViper returns a viper instance with defaults, search paths and env binding
// for the project rooted at root. explicitFile, when set, replaces the lookup.
func NewViper(root, explicitFile string) *viper.Viper {
	v := viper.New()

	v.SetDefault("manifest.filename", defaultConfig.Manifest.Filename)
	v.SetDefault("manifest.list_key", defaultConfig.Manifest.ListKey)
	v.SetDefault("manifest.extensions", defaultConfig.Manifest.Extensions)
	v.SetDefault("manifest.indent", defaultConfig.Manifest.Indent)
	v.SetDefault("manifest.routes", []map[string]interface{}{})
	v.SetDefault("manifest.rename_in_place", defaultConfig.Manifest.RenameInPlace)

	v.SetDefault("index.filename", defaultConfig.Index.Filename)
	v.SetDefault("index.module_extension", defaultConfig.Index.ModuleExtension)
	v.SetDefault("index.create_missing", defaultConfig.Index.CreateMissing)

	v.SetDefault("ignore.segments", defaultConfig.Ignore.Segments)
	v.SetDefault("ignore.patterns", defaultConfig.Ignore.Patterns)
	v.SetDefault("ignore.use_gitignore", defaultConfig.Ignore.UseGitignore)

	v.SetDefault("maintenance.enabled", defaultConfig.Maintenance.Enabled)
	v.SetDefault("maintenance.script", defaultConfig.Maintenance.Script)
	v.SetDefault("maintenance.shell", defaultConfig.Maintenance.Shell)
	v.SetDefault("maintenance.restart_command", defaultConfig.Maintenance.RestartCommand)
	v.SetDefault("maintenance.delay", defaultConfig.Maintenance.Delay.String())
	v.SetDefault("maintenance.timeout", defaultConfig.Maintenance.Timeout.String())

	v.SetDefault("watch.batch_window", defaultConfig.Watch.BatchWindow.String())

	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(root)
	}

	v.SetEnvPrefix("ADDONSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configuration for the project rooted at root. A missing config file
// is not an error; a present but invalid one is.
func Load(root, explicitFile string) (*Config, error) {
	v := NewViper(root, explicitFile)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if used := v.ConfigFileUsed(); used != "" {
		// Validate the file alone; env overrides arrive as strings.
		fileOnly := viper.New()
		fileOnly.SetConfigFile(used)
		if err := fileOnly.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := ValidateSettings(fileOnly.AllSettings()); err != nil {
			return nil, fmt.Errorf("%s: %w", used, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.normalize(); err != nil {
		return nil, err
	}
	return &config, nil
}

// normalize applies invariants viper cannot express.
func (c *Config) normalize() error {
	for i, ext := range c.Manifest.Extensions {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			c.Manifest.Extensions[i] = "." + ext
		}
	}
	if c.Index.ModuleExtension != "" && !strings.HasPrefix(c.Index.ModuleExtension, ".") {
		c.Index.ModuleExtension = "." + c.Index.ModuleExtension
	}
	if filepath.Base(c.Manifest.Filename) != c.Manifest.Filename {
		return fmt.Errorf("manifest.filename must be a bare file name: %q", c.Manifest.Filename)
	}
	if filepath.Base(c.Index.Filename) != c.Index.Filename {
		return fmt.Errorf("index.filename must be a bare file name: %q", c.Index.Filename)
	}
	script, err := safeio.CleanUserPath(c.Maintenance.Script)
	if err != nil {
		return fmt.Errorf("maintenance.script: %w", err)
	}
	c.Maintenance.Script = script
	for _, r := range c.Manifest.Routes {
		if r.Pattern == "" || r.Key == "" {
			return fmt.Errorf("manifest.routes entries need both pattern and key")
		}
	}
	return nil
}

// Effective returns the merged settings (defaults, file, env) and the config file
// that contributed, if any.
func Effective(root, explicitFile string) (map[string]interface{}, string, error) {
	v := NewViper(root, explicitFile)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v.AllSettings(), v.ConfigFileUsed(), nil
}
