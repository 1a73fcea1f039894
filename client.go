package mcpbridge

import (
	"context"
)

// Client bridges one stdio MCP server at a time into an HTTP-inspectable
// endpoint.
//
// Connect spawns the configured server process, waits for it to signal
// readiness, and performs the MCP handshake. With the relay enabled, every
// call the client makes travels as plain HTTP through the local relay
// endpoint, where an intercepting proxy can observe and tamper with it,
// before being forwarded to the server's stdio channel.
//
// Lifecycle: clients are single-use. After Close(), create a new client
// with New().
//
// Example usage:
//
//	cfg, err := mcpbridge.LoadConfig("mcp-config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := mcpbridge.New(cfg,
//	    mcpbridge.WithLogger(slog.Default()),
//	    mcpbridge.WithRelay(true),
//	    mcpbridge.WithUpstreamProxy("http://127.0.0.1:8080"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Connect(ctx, "filesystem"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// List the server's tools
//	tools, err := client.ListTools(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Execute one
//	result, err := client.CallTool(ctx, "read_file", map[string]any{
//	    "path": "/tmp/notes.txt",
//	})
type Client interface {
	// Connect launches the named server and performs the MCP handshake.
	// Any previously connected server is stopped first, so switching
	// servers is just another Connect.
	// Returns a SpawnError if the process cannot be started and a
	// ReadinessError if it never signals readiness.
	Connect(ctx context.Context, server string) error

	// ListTools fetches the server's tool listing and replaces the cached
	// catalog with it.
	ListTools(ctx context.Context) ([]Tool, error)

	// Tools returns the cached tool listing without touching the server.
	Tools() []Tool

	// CallTool executes a named tool with the given arguments and returns
	// the result member of the response.
	// Returns an UnknownToolError when the name is missing from the
	// cached catalog; nothing is sent to the server in that case.
	CallTool(ctx context.Context, name string, arguments map[string]any) (map[string]any, error)

	// Call issues a raw JSON-RPC request for methods outside the tool
	// vocabulary and returns the full response envelope.
	Call(ctx context.Context, method string, params any) (map[string]any, error)

	// Notify issues a raw JSON-RPC notification. No response is awaited.
	Notify(ctx context.Context, method string, params any) error

	// ServerName returns the config name of the connected server, or ""
	// when no server is connected.
	ServerName() string

	// ServerInfo returns the connected server's initialize result, or nil
	// when no server is connected.
	ServerInfo() *InitializeResult

	// Connected reports whether a server is currently connected.
	Connected() bool

	// RelayURL returns the full relay endpoint calls are routed through,
	// including the /mcp path, or "" when the relay is disabled. POST
	// JSON-RPC bodies to it directly or through an intercepting proxy.
	RelayURL() string

	// Close stops the connected server, shuts the relay down, and drains
	// analytics. After Close(), the client cannot be reused.
	// Safe to call multiple times.
	Close() error
}

// New creates a client over the given server definitions.
//
// Nothing is spawned and no port is bound until Connect:
//
//	client, err := mcpbridge.New(cfg,
//	    mcpbridge.WithLogger(slog.Default()),
//	    mcpbridge.WithRelay(true),
//	)
func New(cfg *Config, opts ...Option) (Client, error) {
	return newClientImpl(cfg, opts)
}
