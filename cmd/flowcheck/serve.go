package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/metrics"
	"github.com/rendis/flowcheck/internal/watch"
	"github.com/rendis/flowcheck/pkg/mcp"
)

const (
	mcpEndpoint     = "/mcp"
	metricsEndpoint = "/metrics"
	shutdownTimeout = 5 * time.Second
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the validation tools over MCP",
		Long: `Run an MCP server exposing flowcheck.validate, flowcheck.catalog and
flowcheck.verify.

The stdio transport speaks MCP on stdin/stdout. The http transport serves
streamable HTTP on /mcp and Prometheus metrics on /metrics.

A catalog file given with --catalog is reloaded when it changes, and so is
the catalog selection in the settings file. Connected clients are notified
of each reload.`,
		Example: `  flowcheck serve
  flowcheck serve --transport http --listen :4200 --catalog catalog.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a)
		},
	}

	cmd.Flags().String("transport", "stdio", "Transport: stdio or http")
	cmd.Flags().String("listen", ":4200", "Listen address for the http transport")
	a.bind(cmd, "serve.transport", "transport")
	a.bind(cmd, "serve.listen_addr", "listen")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	cat, _, err := a.loadCatalog(ctx)
	if err != nil {
		return newFailure("load catalog", err)
	}
	reg, err := a.registry()
	if err != nil {
		return newFailure("register implementations", err)
	}

	collector := metrics.New()
	srv, err := mcp.NewFlowcheckServer(mcp.FlowcheckServerDeps{
		Catalog:     cat,
		Policy:      a.cfg.Policy,
		Loader:      reg,
		DeepTimeout: a.cfg.Deep.Timeout,
		Concurrency: a.cfg.Deep.Concurrency,
		Observer:    collector,
		Logger:      a.logger,
		Version:     version,
	})
	if err != nil {
		return newFailure("create server", err)
	}

	r := &reloader{a: a, srv: srv, cfg: a.cfg}
	w, err := r.start()
	if err != nil {
		return newFailure("watch configuration", err)
	}
	if w != nil {
		defer w.Close()
	}

	a.logger.Info("flowcheck serving",
		slog.String("transport", a.cfg.Serve.Transport),
		slog.Int("functions", cat.Count()),
		slog.String("version", version))

	if a.cfg.Serve.Transport == "http" {
		return serveHTTP(ctx, a, srv, collector)
	}
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return newFailure("stdio transport", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, a *app, srv *mcp.FlowcheckServer, collector *metrics.Collector) error {
	mux := http.NewServeMux()
	mux.Handle(mcpEndpoint, srv.HTTPHandler(mcpEndpoint))
	mux.Handle(metricsEndpoint, collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	httpSrv := &http.Server{
		Addr:              a.cfg.Serve.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", slog.String("addr", httpSrv.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return newFailure("http transport", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return newFailure("shutdown", err)
	}
	return nil
}

// reloader reapplies the catalog when the catalog file or the settings file
// changes on disk.
type reloader struct {
	a   *app
	srv *mcp.FlowcheckServer

	mu  sync.Mutex
	cfg Config
}

// start watches the catalog file and settings file, when there are any.
// It returns a nil watcher when nothing needs watching.
func (r *reloader) start() (*watch.Watcher, error) {
	var files []string
	if r.cfg.Catalog.File != "" && r.cfg.Catalog.Snapshot == "" {
		files = append(files, r.cfg.Catalog.File)
	}
	if used := r.a.v.ConfigFileUsed(); used != "" {
		files = append(files, used)
	}
	if len(files) == 0 {
		return nil, nil
	}

	w, err := watch.New(watch.Config{OnChange: r.onChange, Logger: r.a.logger})
	if err != nil {
		return nil, err
	}
	if err := w.Add(files...); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (r *reloader) onChange(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if settings, _ := filepath.Abs(r.a.v.ConfigFileUsed()); path == settings {
		r.reloadSettings()
		return
	}
	r.reloadCatalog(r.cfg.Catalog.File)
}

func (r *reloader) reloadSettings() {
	logger := r.a.logger
	next, err := r.a.rereadConfig()
	if err != nil {
		logger.Warn("settings reload failed, keeping current settings", slog.String("error", err.Error()))
		return
	}

	diff := diffConfigs(r.cfg, next)
	if diff.Empty() {
		return
	}
	if diff.PolicyChanged {
		diff.RestartNeeded = append(diff.RestartNeeded, "policy")
	}
	if diff.LogLevelChanged {
		diff.RestartNeeded = append(diff.RestartNeeded, "log_level")
	}
	if len(diff.RestartNeeded) > 0 {
		logger.Warn("settings changed that need a restart", slog.Any("fields", diff.RestartNeeded))
	}
	if !diff.CatalogChanged {
		return
	}

	r.cfg.Catalog = next.Catalog
	r.a.cfg.Catalog = next.Catalog
	c, _, err := r.a.loadCatalog(context.Background())
	if err != nil {
		logger.Warn("catalog reload failed, keeping current catalog", slog.String("error", err.Error()))
		return
	}
	r.swap(c)
}

func (r *reloader) reloadCatalog(path string) {
	c, err := catalog.LoadFile(path)
	if err != nil {
		r.a.logger.Warn("catalog reload failed, keeping current catalog",
			slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	r.swap(c)
}

func (r *reloader) swap(c *catalog.Catalog) {
	if err := r.srv.ReloadCatalog(c); err != nil {
		r.a.logger.Warn("catalog rejected", slog.String("error", err.Error()))
	}
}
