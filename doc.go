// Package mcpbridge exposes stdio MCP servers through a local HTTP relay
// so their traffic can be inspected and tampered with.
//
// MCP servers launched over stdio are invisible to HTTP inspection tools:
// requests and responses travel over pipes between the client and the
// server process. This package spawns the server as a supervised child,
// serves a plain HTTP endpoint on localhost, and forwards each JSON-RPC
// envelope POSTed there onto the server's stdin. Pointing the bridge's own
// calls at that endpoint, optionally through an upstream proxy such as
// Burp Suite, puts every MCP message on the wire where a proxy can see it.
//
// # Basic Usage
//
// Load a server definitions file and connect:
//
//	cfg, err := mcpbridge.LoadConfig("mcp-config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := mcpbridge.New(cfg,
//	    mcpbridge.WithLogger(slog.Default()),
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
//	tools, err := client.ListTools(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, tool := range tools {
//	    fmt.Println(tool.Name, "-", tool.Description)
//	}
//
//	result, err := client.CallTool(ctx, "read_file", map[string]any{
//	    "path": "/tmp/notes.txt",
//	})
//
// # Routing Through an Inspection Proxy
//
// Enable the relay and point it at the proxy listener. Calls then travel
// HTTP -> proxy -> relay -> stdio, and any HTTP failure falls back to the
// direct stdio path so the session keeps working when the proxy is down:
//
//	client, err := mcpbridge.New(cfg,
//	    mcpbridge.WithRelay(true),
//	    mcpbridge.WithRelayPort(3000),
//	    mcpbridge.WithUpstreamProxy("http://127.0.0.1:8080"),
//	)
//
// External tools can drive the connected server directly by POSTing
// JSON-RPC envelopes to the relay endpoint, by default
// http://127.0.0.1:3000/mcp.
//
// # Lifecycle Management
//
// For one-shot sessions, WithServer handles creation, connection, and
// cleanup:
//
//	err := mcpbridge.WithServer(ctx, cfg, "filesystem", func(c mcpbridge.Client) error {
//	    _, err := c.CallTool(ctx, "list_directory", map[string]any{"path": "/tmp"})
//	    return err
//	},
//	    mcpbridge.WithRelay(true),
//	)
//
// # Logging
//
// For detailed operation tracking, use WithLogger:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
//	client, err := mcpbridge.New(cfg, mcpbridge.WithLogger(logger))
//
// # Error Handling
//
// The package provides typed errors for different failure scenarios:
//
//	if err := client.Connect(ctx, "filesystem"); err != nil {
//	    var spawn *mcpbridge.SpawnError
//	    if errors.As(err, &spawn) {
//	        log.Fatalf("server binary could not be started: %v", spawn.Err)
//	    }
//	    var ready *mcpbridge.ReadinessError
//	    if errors.As(err, &ready) {
//	        log.Fatalf("server never became ready: %v", err)
//	    }
//	    log.Fatal(err)
//	}
//
// # Requirements
//
// Servers are launched exactly as configured, so their runtimes (node,
// python, npx) must be installed. Routing the server's own outbound
// traffic through the proxy additionally requires proxychains on PATH and
// a proxychains.conf in the working directory.
package mcpbridge
