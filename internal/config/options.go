package config

import (
	"context"
	"log/slog"
	"time"
)

// Transport carries framed messages to and from a server. It is satisfied
// by the subprocess supervisor; tests inject their own implementations.
type Transport interface {
	// Write sends one framed message to the server.
	Write(ctx context.Context, data []byte) error
	// Lines delivers the server's output lines in order. The channel
	// closes when the server's output ends.
	Lines() <-chan string
}

// Default endpoints and timeouts. The values mirror the behavior users of
// Burp-style interception setups expect out of the box.
const (
	// DefaultRelayPort is the local port the HTTP relay binds to.
	DefaultRelayPort = 3000

	// DefaultUpstreamProxy is the upstream inspection proxy address.
	DefaultUpstreamProxy = "http://127.0.0.1:8080"

	// DefaultReadinessTimeout bounds the wait for server startup.
	DefaultReadinessTimeout = 20 * time.Second

	// DefaultCallTimeout bounds result-bearing relay calls.
	DefaultCallTimeout = 30 * time.Second

	// DefaultNotifyTimeout bounds notification relay calls.
	DefaultNotifyTimeout = 5 * time.Second

	// DefaultTerminateGrace is how long a server gets to exit after a
	// termination request before it is killed.
	DefaultTerminateGrace = 5 * time.Second

	// DefaultClientName identifies the bridge in the initialize handshake.
	DefaultClientName = "appsecco-mcp-client"

	// DefaultClientVersion is the protocol client version reported to servers.
	DefaultClientVersion = "1.0.0"
)

// Options configures the behavior of the bridge client.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// RelayEnabled starts the local HTTP relay and routes calls through it.
	// When false, calls go directly to the server's stdio channel.
	RelayEnabled bool

	// RelayPort is the local port the relay binds to.
	RelayPort int

	// UpstreamProxy is the URL of the inspection proxy relay traffic is
	// routed through when ViaUpstream is set.
	UpstreamProxy string

	// ViaUpstream routes relay HTTP calls through the upstream proxy.
	ViaUpstream bool

	// UseProxychains wraps the server command in proxychains so the
	// server's own outbound traffic is routed through the proxy as well.
	UseProxychains bool

	// SSLBypass injects environment variables that disable TLS certificate
	// verification in common runtimes, so proxied HTTPS calls made by the
	// server succeed against an intercepting proxy's certificate.
	SSLBypass bool

	// ClientName and ClientVersion identify the bridge in the MCP
	// initialize handshake.
	ClientName    string
	ClientVersion string

	// ReadinessTimeout bounds AwaitReady's poll loop.
	ReadinessTimeout time.Duration

	// CallTimeout bounds result-bearing calls on both the HTTP and the
	// stdio path.
	CallTimeout time.Duration

	// NotifyTimeout bounds notification calls on the HTTP path.
	NotifyTimeout time.Duration

	// TerminateGrace is the wait between a graceful termination request
	// and a forced kill.
	TerminateGrace time.Duration

	// AnalyticsEnabled controls anonymous usage telemetry. The
	// MCPBRIDGE_ANALYTICS_DISABLED environment variable wins over this flag.
	AnalyticsEnabled bool

	// Transport replaces process spawning with an already connected
	// transport. When set, Connect skips the supervisor entirely and
	// speaks to this transport instead.
	Transport Transport
}

// NewOptions returns Options populated with defaults matching the
// interactive tool's behavior: upstream routing, proxychains, and SSL
// bypass on; relay off until requested.
func NewOptions() *Options {
	return &Options{
		RelayEnabled:     false,
		RelayPort:        DefaultRelayPort,
		UpstreamProxy:    DefaultUpstreamProxy,
		ViaUpstream:      true,
		UseProxychains:   true,
		SSLBypass:        true,
		ClientName:       DefaultClientName,
		ClientVersion:    DefaultClientVersion,
		ReadinessTimeout: DefaultReadinessTimeout,
		CallTimeout:      DefaultCallTimeout,
		NotifyTimeout:    DefaultNotifyTimeout,
		TerminateGrace:   DefaultTerminateGrace,
		AnalyticsEnabled: true,
	}
}
