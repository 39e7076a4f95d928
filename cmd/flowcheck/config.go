package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rendis/flowcheck/internal/implementations"
	"github.com/rendis/flowcheck/internal/validation"
	"github.com/rendis/flowcheck/pkg/schema"
)

const (
	// AppName names the settings directory.
	AppName = "flowcheck"
	// EnvPrefix prefixes every environment override, e.g. FLOWCHECK_CATALOG_FILE.
	EnvPrefix = "FLOWCHECK"
)

// Config holds all flowcheck configuration.
// Priority: flags > env vars > settings.yaml > defaults.
type Config struct {
	LogLevel        string                            `mapstructure:"log_level"`
	LogFormat       string                            `mapstructure:"log_format"`
	Catalog         CatalogConfig                     `mapstructure:"catalog"`
	Policy          validation.Policy                 `mapstructure:"policy"`
	Deep            DeepConfig                        `mapstructure:"deep"`
	Implementations []implementations.MCPServerConfig `mapstructure:"implementations"`
	Serve           ServeConfig                       `mapstructure:"serve"`
}

// CatalogConfig selects where capability paths are resolved. Snapshot wins
// over File; with neither set the built-in catalog is used.
type CatalogConfig struct {
	File     string `mapstructure:"file"`
	DB       string `mapstructure:"db"`
	Snapshot string `mapstructure:"snapshot"`
}

type DeepConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

type ServeConfig struct {
	Transport  string `mapstructure:"transport"`
	ListenAddr string `mapstructure:"listen_addr"`
}

func flowcheckDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, "."+AppName)
}

func settingsPath() string {
	return filepath.Join(flowcheckDir(), "settings.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "text")

	v.SetDefault("catalog.file", "")
	v.SetDefault("catalog.db", "")
	v.SetDefault("catalog.snapshot", "")

	v.SetDefault("policy.heuristic_severity", string(schema.SeverityError))
	v.SetDefault("policy.suppress", []string{})

	v.SetDefault("deep.timeout", 10*time.Second)
	v.SetDefault("deep.concurrency", 4)

	v.SetDefault("implementations", []map[string]any{})

	v.SetDefault("serve.transport", "stdio")
	v.SetDefault("serve.listen_addr", ":4200")
}

// loadConfig layers defaults, the settings file and FLOWCHECK_* variables into
// v. Flags bound to v before the call take precedence. A missing default
// settings file is not an error; a missing explicit one is.
func loadConfig(v *viper.Viper, cfgFile string) (Config, error) {
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		v.AddConfigPath(flowcheckDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, schema.NewErrorf(schema.ErrCodeConfig, "read config: %v", err).WithCause(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, schema.NewErrorf(schema.ErrCodeConfig, "parse config: %v", err).WithCause(err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	sev, err := schema.ParseSeverity(string(c.Policy.HeuristicSeverity))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeConfig, "policy.heuristic_severity: %v", err).WithCause(err)
	}
	c.Policy.HeuristicSeverity = sev
	if err := c.Policy.Validate(); err != nil {
		return err
	}

	switch c.Serve.Transport {
	case "stdio", "http":
	default:
		return schema.NewErrorf(schema.ErrCodeConfig, "serve.transport %q: want stdio or http", c.Serve.Transport)
	}

	if c.Catalog.Snapshot != "" && c.Catalog.DB == "" {
		return schema.NewError(schema.ErrCodeConfig, "catalog.snapshot requires catalog.db")
	}
	if c.Deep.Timeout <= 0 {
		return schema.NewErrorf(schema.ErrCodeConfig, "deep.timeout must be positive, got %s", c.Deep.Timeout)
	}
	if c.Deep.Concurrency < 1 {
		return schema.NewErrorf(schema.ErrCodeConfig, "deep.concurrency must be at least 1, got %d", c.Deep.Concurrency)
	}

	seen := make(map[string]bool, len(c.Implementations))
	for i, impl := range c.Implementations {
		if impl.Category == "" || impl.Module == "" || impl.Command == "" {
			return schema.NewErrorf(schema.ErrCodeConfig, "implementations[%d]: category, module and command are required", i)
		}
		if seen[impl.Key()] {
			return schema.NewErrorf(schema.ErrCodeConfig, "implementations[%d]: %s configured twice", i, impl.Key())
		}
		seen[impl.Key()] = true
	}
	return nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	CatalogChanged  bool
	PolicyChanged   bool
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func (d configDiff) Empty() bool {
	return !d.CatalogChanged && !d.PolicyChanged && !d.LogLevelChanged && len(d.RestartNeeded) == 0
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.Catalog != new.Catalog {
		d.CatalogChanged = true
	}
	if !policyEqual(old.Policy, new.Policy) {
		d.PolicyChanged = true
	}
	if old.LogLevel != new.LogLevel || old.LogFormat != new.LogFormat {
		d.LogLevelChanged = true
	}
	if old.Serve != new.Serve {
		d.RestartNeeded = append(d.RestartNeeded, "serve")
	}
	if old.Deep != new.Deep {
		d.RestartNeeded = append(d.RestartNeeded, "deep")
	}
	if !implementationsEqual(old.Implementations, new.Implementations) {
		d.RestartNeeded = append(d.RestartNeeded, "implementations")
	}
	return d
}

func policyEqual(a, b validation.Policy) bool {
	if a.HeuristicSeverity != b.HeuristicSeverity || len(a.Suppress) != len(b.Suppress) {
		return false
	}
	for i := range a.Suppress {
		if a.Suppress[i] != b.Suppress[i] {
			return false
		}
	}
	return true
}

func implementationsEqual(a, b []implementations.MCPServerConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() || a[i].Command != b[i].Command || a[i].Timeout != b[i].Timeout ||
			strings.Join(a[i].Args, "\x00") != strings.Join(b[i].Args, "\x00") ||
			strings.Join(a[i].Env, "\x00") != strings.Join(b[i].Env, "\x00") {
			return false
		}
	}
	return true
}

// rereadConfig reads the settings file again into the bound viper instance,
// keeping flag and environment overrides.
func (a *app) rereadConfig() (Config, error) {
	if err := a.v.ReadInConfig(); err != nil {
		return Config{}, schema.NewErrorf(schema.ErrCodeConfig, "read config: %v", err).WithCause(err)
	}
	var cfg Config
	if err := a.v.Unmarshal(&cfg); err != nil {
		return Config{}, schema.NewErrorf(schema.ErrCodeConfig, "parse config: %v", err).WithCause(err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
