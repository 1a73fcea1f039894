package mcpbridge

import (
	"log/slog"
	"time"

	"github.com/appsecco/mcpbridge/internal/config"
)

// Option configures Options using the functional options pattern.
// This is the primary option type for configuring clients.
type Option func(*Options)

// applyOptions resolves functional options on top of the defaults.
func applyOptions(opts []Option) *Options {
	options := config.NewOptions()
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic Configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithClientInfo overrides the name and version the bridge announces in
// the MCP initialize handshake.
func WithClientInfo(name, version string) Option {
	return func(o *Options) {
		o.ClientName = name
		o.ClientVersion = version
	}
}

// ===== Relay =====

// WithRelay starts the local HTTP relay and routes calls through it.
// Without the relay every call goes straight to the server's stdio channel
// and nothing is observable over HTTP.
func WithRelay(enabled bool) Option {
	return func(o *Options) {
		o.RelayEnabled = enabled
	}
}

// WithRelayPort sets the local port the relay binds to. The default is
// port 3000.
func WithRelayPort(port int) Option {
	return func(o *Options) {
		o.RelayPort = port
	}
}

// ===== Interception =====

// WithUpstreamProxy sets the URL of the inspection proxy relay traffic is
// routed through, typically a Burp or mitmproxy listener.
func WithUpstreamProxy(url string) Option {
	return func(o *Options) {
		o.UpstreamProxy = url
	}
}

// WithViaUpstream routes relay HTTP calls through the upstream proxy.
// On by default; disable for direct relay traffic.
func WithViaUpstream(via bool) Option {
	return func(o *Options) {
		o.ViaUpstream = via
	}
}

// WithProxychains wraps the server command in proxychains so the server's
// own outbound traffic is routed through the proxy as well. Requires the
// proxychains binary and a proxychains.conf in the working directory.
func WithProxychains(use bool) Option {
	return func(o *Options) {
		o.UseProxychains = use
	}
}

// WithSSLBypass injects environment variables that disable TLS
// certificate verification in common server runtimes, so proxied HTTPS
// calls succeed against an intercepting proxy's certificate.
func WithSSLBypass(bypass bool) Option {
	return func(o *Options) {
		o.SSLBypass = bypass
	}
}

// ===== Timeouts =====

// WithReadinessTimeout bounds the wait for server startup output.
func WithReadinessTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ReadinessTimeout = timeout
	}
}

// WithCallTimeout bounds the HTTP leg of result-bearing calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.CallTimeout = timeout
	}
}

// WithNotifyTimeout bounds the HTTP leg of notification calls.
func WithNotifyTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.NotifyTimeout = timeout
	}
}

// WithTerminateGrace sets how long a server gets to exit after a graceful
// termination request before it is killed.
func WithTerminateGrace(grace time.Duration) Option {
	return func(o *Options) {
		o.TerminateGrace = grace
	}
}

// ===== Analytics =====

// WithAnalytics controls anonymous usage telemetry. The
// MCPBRIDGE_ANALYTICS_DISABLED environment variable wins over this flag.
func WithAnalytics(enabled bool) Option {
	return func(o *Options) {
		o.AnalyticsEnabled = enabled
	}
}

// ===== Advanced =====

// WithTransport injects a custom transport implementation. When set,
// Connect skips process spawning entirely and speaks to this transport.
func WithTransport(transport Transport) Option {
	return func(o *Options) {
		o.Transport = transport
	}
}
