package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/appsecco/mcpbridge/internal/analytics"
	"github.com/appsecco/mcpbridge/internal/catalog"
	"github.com/appsecco/mcpbridge/internal/config"
	bridgeerrors "github.com/appsecco/mcpbridge/internal/errors"
	"github.com/appsecco/mcpbridge/internal/protocol"
	"github.com/appsecco/mcpbridge/internal/relay"
	"github.com/appsecco/mcpbridge/internal/router"
	"github.com/appsecco/mcpbridge/internal/subprocess"
)

// relayShutdownTimeout bounds the relay's drain window during Close.
const relayShutdownTimeout = 5 * time.Second

// Client owns the full bridge chain for one server at a time: the
// supervised process, the JSON-RPC conn over its stdio, the local relay
// endpoint, and the router that decides whether calls travel over HTTP or
// straight to stdio.
type Client struct {
	log  *slog.Logger
	cfg  *config.Config
	opts *config.Options

	// Long-lived components, built once in New. The relay and router are
	// re-pointed at the current conn on every Connect.
	relay     *relay.Server
	router    *router.Router
	catalog   *catalog.Catalog
	analytics *analytics.Client

	// Lifecycle management
	mu           sync.Mutex
	proc         *subprocess.Process
	conn         *protocol.Conn
	serverName   string
	serverInfo   *protocol.InitializeResult
	relayStarted bool
	closed       bool
	closeOnce    sync.Once
}

// New assembles a client from the server definitions and option set.
// Nothing is spawned and no port is bound until Connect.
func New(cfg *config.Config, opts *config.Options) (*Client, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}

	if opts == nil {
		opts = config.NewOptions()
	}

	log := opts.Logger
	if log == nil {
		log = config.NopLogger()
	}

	var proxyURL *url.URL

	if opts.ViaUpstream && opts.UpstreamProxy != "" {
		parsed, err := url.Parse(opts.UpstreamProxy)
		if err != nil {
			return nil, fmt.Errorf("parse upstream proxy URL %q: %w", opts.UpstreamProxy, err)
		}

		proxyURL = parsed
	}

	relayServer := relay.NewServer(opts.Logger, opts.RelayPort)

	rt := router.New(opts.Logger, router.Config{
		RelayURL:      relayServer.URL(),
		UpstreamProxy: proxyURL,
		ViaUpstream:   opts.ViaUpstream,
		RelayEnabled:  opts.RelayEnabled,
		CallTimeout:   opts.CallTimeout,
		NotifyTimeout: opts.NotifyTimeout,
	})

	c := &Client{
		log:       log.With("component", "client"),
		cfg:       cfg,
		opts:      opts,
		relay:     relayServer,
		router:    rt,
		catalog:   catalog.New(opts.Logger, rt),
		analytics: analytics.New(opts.Logger, opts.ClientVersion, opts.AnalyticsEnabled),
	}

	c.analytics.SessionStart("")

	if rt.ViaUpstream() {
		c.analytics.UpstreamProxyEnabled()
	}

	if opts.UseProxychains {
		c.analytics.ProxychainsEnabled()
	}

	return c, nil
}

// Connect launches the named server and performs the MCP handshake over
// the configured route. Any previously connected server is stopped first,
// so switching servers is just another Connect.
//
// The relay is started on the first Connect that needs it and stays bound
// across server switches; only the conn behind it is swapped.
func (c *Client) Connect(ctx context.Context, server string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return bridgeerrors.ErrClientClosed
	}

	if len(c.cfg.MCPServers) == 0 {
		return bridgeerrors.ErrNoServers
	}

	spec, err := c.cfg.Server(server)
	if err != nil {
		return err
	}

	c.teardownLocked()

	c.log.Info("Connecting to server", "server", server, "command", spec.Command)

	var (
		proc      *subprocess.Process
		transport config.Transport
	)

	if c.opts.Transport != nil {
		transport = c.opts.Transport

		c.log.Debug("Using injected custom transport")
	} else {
		proc = subprocess.NewProcess(server, spec, c.opts)

		if err := proc.Start(); err != nil {
			c.analytics.BridgeError("spawn_failure")

			return err
		}

		if err := proc.AwaitReady(ctx); err != nil {
			var exited *bridgeerrors.ProcessExitedError
			if errors.As(err, &exited) {
				c.analytics.BridgeError("process_exited")
			} else {
				c.analytics.BridgeError("readiness_failure")
			}

			c.stopProcess(proc)

			return err
		}

		transport = proc
	}

	conn := protocol.NewConn(c.opts.Logger, transport)
	conn.Start()

	abort := func() {
		c.relay.Rebind(nil)
		c.router.Bind(nil)
		conn.Close()

		if proc != nil {
			c.stopProcess(proc)
		}
	}

	if c.opts.RelayEnabled && !c.relayStarted {
		if err := c.relay.Start(ctx); err != nil {
			abort()

			return err
		}

		c.relayStarted = true
		c.analytics.RelayStarted(c.opts.RelayPort)
	}

	c.relay.Rebind(conn)
	c.router.Bind(conn)

	envelope, err := c.router.Call(ctx, protocol.MethodInitialize,
		protocol.InitializeParams(c.opts.ClientName, c.opts.ClientVersion))
	if err != nil {
		abort()

		return fmt.Errorf("initialize: %w", err)
	}

	info, err := protocol.ParseInitializeResult(envelope)
	if err != nil {
		abort()

		return err
	}

	if err := c.router.Notify(ctx, protocol.MethodInitialized, nil); err != nil {
		abort()

		return fmt.Errorf("initialized notification: %w", err)
	}

	if _, err := c.catalog.Refresh(ctx); err != nil {
		abort()

		return err
	}

	c.proc = proc
	c.conn = conn
	c.serverName = server
	c.serverInfo = info

	mechanism := ""
	if proc != nil {
		mechanism = string(proc.Mechanism())
	}

	c.analytics.ServerConnected(server, mechanism)

	c.log.Info("Server connected",
		"server", server,
		"name", info.ServerInfo.Name,
		"version", info.ServerInfo.Version,
		"tools", c.catalog.Len())

	return nil
}

// teardownLocked stops the current server and unbinds it from the relay
// and router. Caller must hold c.mu.
func (c *Client) teardownLocked() {
	if c.conn == nil && c.proc == nil {
		return
	}

	c.log.Info("Disconnecting server", "server", c.serverName)

	c.relay.Rebind(nil)
	c.router.Bind(nil)

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	if c.proc != nil {
		c.stopProcess(c.proc)
		c.proc = nil
	}

	c.serverName = ""
	c.serverInfo = nil
}

func (c *Client) stopProcess(proc *subprocess.Process) {
	if err := proc.Stop(); err != nil {
		c.log.Warn("Server process stop failed", "error", err)
	}
}

// ensureConnected gates operations that need a live server.
func (c *Client) ensureConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return bridgeerrors.ErrClientClosed
	}

	if c.conn == nil {
		return bridgeerrors.ErrNotConnected
	}

	return nil
}

// ListTools fetches the server's tool listing and replaces the cached
// catalog with it.
func (c *Client) ListTools(ctx context.Context) ([]catalog.Tool, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	return c.catalog.Refresh(ctx)
}

// Tools returns the cached tool listing without touching the server.
func (c *Client) Tools() []catalog.Tool {
	return c.catalog.Tools()
}

// CallTool executes a named tool. The name is validated against the
// cached catalog before anything is sent to the server.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (map[string]any, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	result, err := c.catalog.Invoke(ctx, name, arguments)
	c.analytics.ToolExecuted(name, err == nil)

	return result, err
}

// Call issues a raw JSON-RPC request for methods outside the tool
// vocabulary and returns the full response envelope.
func (c *Client) Call(ctx context.Context, method string, params any) (map[string]any, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	return c.router.Call(ctx, method, params)
}

// Notify issues a raw JSON-RPC notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}

	return c.router.Notify(ctx, method, params)
}

// ServerName returns the config name of the connected server, or "" when
// no server is connected.
func (c *Client) ServerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.serverName
}

// ServerInfo returns the connected server's initialize result, or nil.
func (c *Client) ServerInfo() *protocol.InitializeResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.serverInfo
}

// Connected reports whether a server is currently connected.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil
}

// RelayURL returns the relay endpoint calls are routed through, or ""
// when the relay is disabled.
func (c *Client) RelayURL() string {
	if !c.opts.RelayEnabled {
		return ""
	}

	return c.relay.URL()
}

// Close stops the connected server, shuts the relay down, and drains
// analytics.
//
// After Close the client cannot be reused: create a new one with New.
// Safe to call multiple times.
func (c *Client) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true

		c.log.Info("Closing client")

		c.teardownLocked()

		relayStarted := c.relayStarted
		c.relayStarted = false
		c.mu.Unlock()

		if relayStarted {
			ctx, cancel := context.WithTimeout(context.Background(), relayShutdownTimeout)

			if err := c.relay.Shutdown(ctx); err != nil {
				closeErr = err
			}

			cancel()
		}

		c.analytics.Close()

		c.log.Info("Client closed")
	})

	return closeErr
}
