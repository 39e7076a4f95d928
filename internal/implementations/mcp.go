package implementations

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/flowcheck/pkg/schema"
)

const defaultMCPCallTimeout = 30 * time.Second

// MCPServerConfig describes an external MCP server that implements one
// catalog module. Each server tool is exposed as a module function; tool
// names are lower-cased and underscores become hyphens.
type MCPServerConfig struct {
	Category string        `mapstructure:"category" json:"category" yaml:"category"`
	Module   string        `mapstructure:"module" json:"module" yaml:"module"`
	Command  string        `mapstructure:"command" json:"command" yaml:"command"`
	Args     []string      `mapstructure:"args" json:"args,omitempty" yaml:"args,omitempty"`
	Env      []string      `mapstructure:"env" json:"env,omitempty" yaml:"env,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Key returns the category.module the server backs.
func (c MCPServerConfig) Key() string {
	return moduleKey(c.Category, c.Module)
}

// MCPLoader returns a Loader that spawns the server over stdio, performs the
// initialize handshake and lists its tools.
func MCPLoader(cfg MCPServerConfig, version string) Loader {
	return func(ctx context.Context) (Unit, error) {
		if cfg.Command == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "implementation %s: command is required", cfg.Key())
		}

		c, err := client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeLoad, "start %s: %v", cfg.Key(), err).WithCause(err)
		}
		return connectMCP(ctx, c, cfg, version)
	}
}

// RegisterMCPServers registers one MCPLoader per configured server.
func RegisterMCPServers(reg *Registry, servers []MCPServerConfig, version string) error {
	for _, s := range servers {
		if err := reg.Register(s.Category, s.Module, MCPLoader(s, version)); err != nil {
			return err
		}
	}
	return nil
}

type mcpUnit struct {
	key     string
	client  *client.Client
	tools   map[string]string // function name -> tool name
	timeout time.Duration
}

func connectMCP(ctx context.Context, c *client.Client, cfg MCPServerConfig, version string) (Unit, error) {
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, schema.NewErrorf(schema.ErrCodeLoad, "start %s: %v", cfg.Key(), err).WithCause(err)
	}

	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "flowcheck",
				Version: version,
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, schema.NewErrorf(schema.ErrCodeLoad, "initialize %s: %v", cfg.Key(), err).WithCause(err)
	}

	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, schema.NewErrorf(schema.ErrCodeLoad, "list tools of %s: %v", cfg.Key(), err).WithCause(err)
	}

	tools := make(map[string]string, len(res.Tools))
	for _, t := range res.Tools {
		tools[functionName(t.Name)] = t.Name
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultMCPCallTimeout
	}

	return &mcpUnit{
		key:     cfg.Key(),
		client:  c,
		tools:   tools,
		timeout: timeout,
	}, nil
}

func functionName(tool string) string {
	return strings.ReplaceAll(strings.ToLower(tool), "_", "-")
}

func (u *mcpUnit) Functions() []string {
	names := make([]string, 0, len(u.tools))
	for n := range u.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Call invokes the tool and decodes its text content. A single text item that
// parses as JSON is returned as the decoded value.
func (u *mcpUnit) Call(ctx context.Context, function string, params map[string]any) (any, error) {
	tool, ok := u.tools[function]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "%s has no function %q", u.key, function)
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	res, err := u.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: params,
		},
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s.%s: %v", u.key, function, err).WithCause(err)
	}

	var texts []string
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if res.IsError {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%s.%s: %s", u.key, function, text)
	}

	var decoded any
	if len(texts) == 1 && json.Unmarshal([]byte(text), &decoded) == nil {
		return decoded, nil
	}
	return text, nil
}

func (u *mcpUnit) Close() error {
	return u.client.Close()
}
