package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/implementations"
	"github.com/rendis/flowcheck/internal/logging"
	"github.com/rendis/flowcheck/internal/store"
)

// app is the state shared by every subcommand: the viper instance flags are
// bound to and the configuration and logger built from it before each run.
type app struct {
	v       *viper.Viper
	cfgFile string
	stdin   io.Reader

	cfg    Config
	logger *slog.Logger
}

func newApp() *app {
	return &app{v: viper.New(), stdin: os.Stdin}
}

// newRootCommand creates the root command with every subcommand attached.
func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowcheck",
		Short: "Validate declarative workflow definitions before they run",
		Long: `flowcheck checks workflow definitions against the workflow schema, the
capability catalog, variable dataflow and output display rules, and can
optionally load every implementation a workflow depends on.

Settings are read from ~/.flowcheck/settings.yaml (or --config), then
FLOWCHECK_* environment variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Path to settings file (default: "+settingsPath()+")")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("catalog", "", "Capability catalog file (YAML or JSON)")
	flags.String("catalog-db", "", "Catalog snapshot database")
	flags.String("catalog-snapshot", "", "Named catalog snapshot to validate against (requires --catalog-db)")

	a.bind(cmd, "log_level", "log-level")
	a.bind(cmd, "log_format", "log-format")
	a.bind(cmd, "catalog.file", "catalog")
	a.bind(cmd, "catalog.db", "catalog-db")
	a.bind(cmd, "catalog.snapshot", "catalog-snapshot")

	cmd.AddCommand(
		newValidateCommand(a),
		newCatalogCommand(a),
		newSchemaCommand(),
		newServeCommand(a),
		newHistoryCommand(a),
		newGraphCommand(a),
		newInvokeCommand(a),
		newVersionCommand(),
	)
	return cmd
}

// bind ties a config key to a flag on cmd (persistent or local).
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	f := cmd.Flags().Lookup(flag)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(flag)
	}
	if f == nil {
		panic("flowcheck: unknown flag " + flag)
	}
	_ = a.v.BindPFlag(key, f)
}

func (a *app) init(stderr io.Writer) error {
	cfg, err := loadConfig(a.v, a.cfgFile)
	if err != nil {
		return newFailure("invalid configuration", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return newFailure("invalid configuration", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// loadCatalog resolves the configured catalog and returns it with the name
// recorded alongside validation runs.
func (a *app) loadCatalog(ctx context.Context) (*catalog.Catalog, string, error) {
	switch {
	case a.cfg.Catalog.Snapshot != "":
		st, err := a.openStore(ctx)
		if err != nil {
			return nil, "", err
		}
		defer st.Close()

		c, err := store.LoadCatalog(ctx, st, a.cfg.Catalog.Snapshot)
		if err != nil {
			return nil, "", err
		}
		return c, a.cfg.Catalog.Snapshot, nil

	case a.cfg.Catalog.File != "":
		c, err := catalog.LoadFile(a.cfg.Catalog.File)
		if err != nil {
			return nil, "", err
		}
		return c, a.cfg.Catalog.File, nil

	default:
		c, err := catalog.Builtin()
		if err != nil {
			return nil, "", err
		}
		return c, "builtin", nil
	}
}

// openStore opens and migrates the configured snapshot database.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if a.cfg.Catalog.DB == "" {
		return nil, newFailure("no catalog database configured (set --catalog-db or catalog.db)", nil)
	}
	st, err := store.NewLibSQLStore(a.cfg.Catalog.DB)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// registry returns the built-in units plus every configured MCP-backed unit.
func (a *app) registry() (*implementations.Registry, error) {
	reg, err := implementations.NewBuiltinRegistry()
	if err != nil {
		return nil, err
	}
	if err := implementations.RegisterMCPServers(reg, a.cfg.Implementations, version); err != nil {
		return nil, err
	}
	return reg, nil
}
