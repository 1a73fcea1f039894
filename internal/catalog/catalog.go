package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/appsecco/mcpbridge/internal/config"
	bridgeerrors "github.com/appsecco/mcpbridge/internal/errors"
	"github.com/appsecco/mcpbridge/internal/protocol"
)

// Tool describes one callable operation advertised by the server.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema,omitempty"`
}

// Caller issues result-bearing MCP requests. Satisfied by the router, so
// catalog traffic takes the same relay/fallback route as everything else.
type Caller interface {
	Call(ctx context.Context, method string, params any) (map[string]any, error)
}

// Catalog caches the server's advertised tools. The cache is replaced
// wholesale on a successful Refresh and left untouched on any failure, so
// readers never observe a partially updated listing.
type Catalog struct {
	log    *slog.Logger
	caller Caller

	mu    sync.RWMutex
	tools []Tool
	index map[string]int
}

// New creates an empty catalog backed by the given caller.
func New(log *slog.Logger, caller Caller) *Catalog {
	if log == nil {
		log = config.NopLogger()
	}

	return &Catalog{
		log:    log.With("component", "catalog"),
		caller: caller,
	}
}

// Refresh re-issues tools/list and atomically replaces the cached set.
// Returns the fresh listing in the order the server advertised it.
func (c *Catalog) Refresh(ctx context.Context) ([]Tool, error) {
	response, err := c.caller.Call(ctx, protocol.MethodToolsList, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	if err := protocol.EnvelopeError(response); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	result, ok := protocol.Result(response)
	if !ok {
		return nil, fmt.Errorf("tools/list response has no result")
	}

	tools, err := decodeTools(result["tools"])
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tools = tools
	c.index = indexByName(tools)
	c.mu.Unlock()

	c.log.Debug("Tool catalog refreshed", "count", len(tools))

	return slices.Clone(tools), nil
}

// Invoke calls a tool by name. The name is validated against the cache
// first; that check is advisory, the server remains the authority on which
// tools exist. Returns the result member of the response envelope.
func (c *Catalog) Invoke(ctx context.Context, name string, arguments map[string]any) (map[string]any, error) {
	if _, ok := c.Get(name); !ok {
		return nil, &bridgeerrors.UnknownToolError{Name: name}
	}

	params := map[string]any{
		"name":      name,
		"arguments": arguments,
	}

	response, err := c.caller.Call(ctx, protocol.MethodToolsCall, params)
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}

	if err := protocol.EnvelopeError(response); err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}

	result, ok := protocol.Result(response)
	if !ok {
		return nil, fmt.Errorf("tool %s response has no result", name)
	}

	return result, nil
}

// Tools returns a copy of the cached listing in server order.
func (c *Catalog) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.tools)
}

// Get looks up a cached tool by name.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[name]
	if !ok {
		return Tool{}, false
	}

	return c.tools[i], true
}

// Len reports the number of cached tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.tools)
}

// decodeTools converts the raw tools member of a tools/list result into
// typed descriptors. The JSON round trip lets jsonschema.Schema apply its
// own unmarshalling rules to each input schema.
func decodeTools(raw any) ([]Tool, error) {
	if raw == nil {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode tool listing: %w", err)
	}

	var tools []Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("decode tool listing: %w", err)
	}

	return tools, nil
}

func indexByName(tools []Tool) map[string]int {
	index := make(map[string]int, len(tools))
	for i, tool := range tools {
		index[tool.Name] = i
	}

	return index
}
