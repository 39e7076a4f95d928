package implementations

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContactsServer() *server.MCPServer {
	s := server.NewMCPServer("contacts", "1.0.0", server.WithToolCapabilities(false))
	s.AddTools(
		server.ServerTool{
			Tool: mcp.NewTool("lookup_contact",
				mcp.WithDescription("Find a contact by email"),
				mcp.WithString("email", mcp.Required()),
			),
			Handler: func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				email, err := req.RequireString("email")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return mcp.NewToolResultText(`{"email":"` + email + `","name":"Ada"}`), nil
			},
		},
		server.ServerTool{
			Tool: mcp.NewTool("ping"),
			Handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("pong"), nil
			},
		},
	)
	return s
}

func connectInProcess(t *testing.T) Unit {
	t.Helper()
	c, err := client.NewInProcessClient(newContactsServer())
	require.NoError(t, err)

	unit, err := connectMCP(context.Background(), c, MCPServerConfig{Category: "crm", Module: "contacts"}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { unit.Close() })
	return unit
}

func TestMCPUnit_Functions(t *testing.T) {
	unit := connectInProcess(t)
	assert.Equal(t, []string{"lookup-contact", "ping"}, unit.Functions())
}

func TestMCPUnit_Call(t *testing.T) {
	unit := connectInProcess(t)

	out, err := unit.Call(context.Background(), "lookup-contact", map[string]any{"email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"email": "ada@example.com", "name": "Ada"}, out)

	out, err = unit.Call(context.Background(), "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestMCPUnit_ToolError(t *testing.T) {
	unit := connectInProcess(t)

	_, err := unit.Call(context.Background(), "lookup-contact", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crm.contacts.lookup-contact")
}

func TestMCPUnit_UnknownFunction(t *testing.T) {
	unit := connectInProcess(t)
	_, err := unit.Call(context.Background(), "delete", nil)
	assert.Error(t, err)
}

func TestMCPLoader_MissingCommand(t *testing.T) {
	_, err := MCPLoader(MCPServerConfig{Category: "crm", Module: "contacts"}, "test")(context.Background())
	assert.Error(t, err)
}

func TestMCPLoader_CommandNotFound(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterMCPServers(reg, []MCPServerConfig{{
		Category: "crm",
		Module:   "contacts",
		Command:  "/nonexistent/flowcheck-test-server",
	}}, "test"))

	_, err := reg.Load(context.Background(), "crm", "contacts")
	assert.Error(t, err)
}
