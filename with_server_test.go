package mcpbridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	mcpbridge "github.com/appsecco/mcpbridge"
)

func TestWithServer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := mcpbridge.WithServer(ctx, nil, "any", func(_ mcpbridge.Client) error {
		t.Error("callback should not be called with cancelled context")

		return nil
	})
	if err == nil {
		t.Error("expected error for cancelled context")
	}

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWithServer_NoServersConfigured(t *testing.T) {
	called := false

	err := mcpbridge.WithServer(context.Background(), &mcpbridge.Config{}, "any",
		func(_ mcpbridge.Client) error {
			called = true

			return nil
		},
		mcpbridge.WithAnalytics(false),
		mcpbridge.WithViaUpstream(false),
	)

	if !errors.Is(err, mcpbridge.ErrNoServers) {
		t.Errorf("expected ErrNoServers, got %v", err)
	}

	if called {
		t.Error("callback should not run when Connect fails")
	}
}

// scriptedServer answers every request with a fixed handshake so WithServer
// can reach the callback without spawning a process.
type scriptedServer struct {
	lines chan string
}

func newScriptedServer() *scriptedServer {
	return &scriptedServer{lines: make(chan string, 16)}
}

func (s *scriptedServer) Write(_ context.Context, data []byte) error {
	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	id, hasID := envelope["id"]
	if !hasID {
		return nil
	}

	result := map[string]any{}

	switch envelope["method"] {
	case "initialize":
		result = map[string]any{
			"protocolVersion": mcpbridge.ProtocolVersion,
			"capabilities":    map[string]any{},
			"serverInfo":      map[string]any{"name": "scripted", "version": "1.0.0"},
		}
	case "tools/list":
		result = map[string]any{"tools": []any{}}
	}

	response, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
	if err != nil {
		return err
	}

	s.lines <- string(response)

	return nil
}

func (s *scriptedServer) Lines() <-chan string {
	return s.lines
}

func TestWithServer_CallbackError(t *testing.T) {
	cfg := &mcpbridge.Config{
		MCPServers: map[string]mcpbridge.ServerConfig{
			"scripted": {Command: "scripted"},
		},
	}

	sentinel := errors.New("callback failed")

	err := mcpbridge.WithServer(context.Background(), cfg, "scripted",
		func(c mcpbridge.Client) error {
			if got := c.ServerName(); got != "scripted" {
				t.Errorf("expected connected server %q, got %q", "scripted", got)
			}

			return sentinel
		},
		mcpbridge.WithTransport(newScriptedServer()),
		mcpbridge.WithAnalytics(false),
		mcpbridge.WithViaUpstream(false),
		mcpbridge.WithProxychains(false),
		mcpbridge.WithSSLBypass(false),
	)

	if !errors.Is(err, sentinel) {
		t.Errorf("expected callback error to propagate, got %v", err)
	}
}
