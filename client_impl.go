package mcpbridge

import (
	"context"

	"github.com/appsecco/mcpbridge/internal/client"
)

// clientWrapper wraps the internal client to adapt it to the public interface.
type clientWrapper struct {
	impl *client.Client
}

// Compile-time check that *clientWrapper implements the Client interface.
var _ Client = (*clientWrapper)(nil)

// newClientImpl creates the internal client implementation.
func newClientImpl(cfg *Config, opts []Option) (Client, error) {
	impl, err := client.New(cfg, applyOptions(opts))
	if err != nil {
		return nil, err
	}

	return &clientWrapper{impl: impl}, nil
}

// Connect launches the named server and performs the MCP handshake.
func (c *clientWrapper) Connect(ctx context.Context, server string) error {
	return c.impl.Connect(ctx, server)
}

// ListTools fetches the server's tool listing and refreshes the cache.
func (c *clientWrapper) ListTools(ctx context.Context) ([]Tool, error) {
	return c.impl.ListTools(ctx)
}

// Tools returns the cached tool listing.
func (c *clientWrapper) Tools() []Tool {
	return c.impl.Tools()
}

// CallTool executes a named tool with the given arguments.
func (c *clientWrapper) CallTool(ctx context.Context, name string, arguments map[string]any) (map[string]any, error) {
	return c.impl.CallTool(ctx, name, arguments)
}

// Call issues a raw JSON-RPC request.
func (c *clientWrapper) Call(ctx context.Context, method string, params any) (map[string]any, error) {
	return c.impl.Call(ctx, method, params)
}

// Notify issues a raw JSON-RPC notification.
func (c *clientWrapper) Notify(ctx context.Context, method string, params any) error {
	return c.impl.Notify(ctx, method, params)
}

// ServerName returns the config name of the connected server.
func (c *clientWrapper) ServerName() string {
	return c.impl.ServerName()
}

// ServerInfo returns the connected server's initialize result.
func (c *clientWrapper) ServerInfo() *InitializeResult {
	return c.impl.ServerInfo()
}

// Connected reports whether a server is currently connected.
func (c *clientWrapper) Connected() bool {
	return c.impl.Connected()
}

// RelayURL returns the relay endpoint calls are routed through.
func (c *clientWrapper) RelayURL() string {
	return c.impl.RelayURL()
}

// Close stops the connected server and cleans up resources.
func (c *clientWrapper) Close() error {
	return c.impl.Close()
}
