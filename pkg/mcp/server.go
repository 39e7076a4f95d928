package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/validation"
)

const defaultDeepTimeout = 10 * time.Second

// Observer receives validation and deep verification outcomes.
type Observer interface {
	validation.Observer
	ObserveVerification(result *validation.VerificationResult)
}

// FlowcheckServerDeps holds the dependencies for creating a FlowcheckServer.
type FlowcheckServerDeps struct {
	Catalog *catalog.Catalog
	Policy  validation.Policy
	// Loader backs flowcheck.verify. Nil disables deep verification.
	Loader      validation.ImplementationLoader
	DeepTimeout time.Duration
	Concurrency int
	Observer    Observer
	Logger      *slog.Logger
	Version     string
}

// FlowcheckServer wraps an MCP server with workflow validation tools.
type FlowcheckServer struct {
	deps      FlowcheckServerDeps
	logger    *slog.Logger
	mcpServer *server.MCPServer

	mu        sync.RWMutex
	catalog   *catalog.Catalog
	validator *validation.Validator
	verifier  *validation.Verifier
}

// NewFlowcheckServer creates a FlowcheckServer with all 3 tools registered.
func NewFlowcheckServer(deps FlowcheckServerDeps) (*FlowcheckServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.DeepTimeout <= 0 {
		deps.DeepTimeout = defaultDeepTimeout
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	if deps.Catalog == nil {
		c, err := catalog.Builtin()
		if err != nil {
			return nil, err
		}
		deps.Catalog = c
	}

	s := &FlowcheckServer{deps: deps, logger: logger}
	if err := s.ReloadCatalog(deps.Catalog); err != nil {
		return nil, err
	}
	if deps.Loader != nil {
		s.verifier = validation.NewVerifier(deps.Loader,
			validation.WithConcurrency(concurrencyOrDefault(deps.Concurrency)),
			validation.WithVerifierLogger(logger))
	}

	mcpSrv := server.NewMCPServer(
		"flowcheck",
		deps.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowcheck validates declarative workflow definitions before they run. Use flowcheck.catalog to discover capability paths, flowcheck.validate to check a definition and get every defect with a suggested fix, and flowcheck.verify to also confirm each step's implementation can be loaded."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// ReloadCatalog swaps the catalog used by every tool. Connected clients are
// notified of the change.
func (s *FlowcheckServer) ReloadCatalog(c *catalog.Catalog) error {
	opts := []validation.Option{
		validation.WithPolicy(s.deps.Policy),
		validation.WithLogger(s.logger),
	}
	if s.deps.Observer != nil {
		opts = append(opts, validation.WithObserver(s.deps.Observer))
	}
	v, err := validation.NewValidator(c, opts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	replaced := s.catalog != nil
	s.catalog = c
	s.validator = v
	s.mu.Unlock()

	if replaced && s.mcpServer != nil {
		s.mcpServer.SendNotificationToAllClients("notifications/message", map[string]any{
			"level":  "info",
			"logger": "flowcheck",
			"data": map[string]any{
				"event":     "catalog_reloaded",
				"functions": c.Count(),
			},
		})
		s.logger.Info("catalog reloaded", slog.Int("functions", c.Count()))
	}
	return nil
}

func (s *FlowcheckServer) current() (*catalog.Catalog, *validation.Validator) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog, s.validator
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowcheckServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler returns a streamable HTTP transport for the server.
func (s *FlowcheckServer) HTTPHandler(endpoint string) http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer, server.WithEndpointPath(endpoint))
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowcheckServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 3 registered MCP tools as ServerTool entries.
func (s *FlowcheckServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: catalogTool(), Handler: s.handleCatalog},
		{Tool: verifyTool(), Handler: s.handleVerify},
	}
}

// --- Tool definitions ---

func validateTool() mcp.Tool {
	return mcp.NewTool("flowcheck.validate",
		mcp.WithDescription("Validate a workflow definition and report every defect"),
		mcp.WithObject("definition", mcp.Description("Workflow definition object")),
		mcp.WithString("document", mcp.Description("Workflow definition as YAML or JSON text (used when definition is absent)")),
	)
}

func catalogTool() mcp.Tool {
	return mcp.NewTool("flowcheck.catalog",
		mcp.WithDescription("List capability categories, modules and functions"),
		mcp.WithString("category", mcp.Description("Only show this category")),
		mcp.WithString("module", mcp.Description("Only show this module (requires category)")),
	)
}

func verifyTool() mcp.Tool {
	return mcp.NewTool("flowcheck.verify",
		mcp.WithDescription("Validate a workflow definition and verify each step's implementation"),
		mcp.WithObject("definition", mcp.Description("Workflow definition object")),
		mcp.WithString("document", mcp.Description("Workflow definition as YAML or JSON text (used when definition is absent)")),
		mcp.WithNumber("timeout_ms", mcp.Description("Deadline for loading implementations in milliseconds")),
	)
}

func concurrencyOrDefault(n int) int {
	if n <= 0 {
		return 4
	}
	return n
}
