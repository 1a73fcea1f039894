package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"

	"github.com/appsecco/mcpbridge/internal/config"
)

// Project-scoped write-only key; accepts events for this tool only.
// Override with MCPBRIDGE_POSTHOG_API_KEY to point at your own project.
const (
	defaultAPIKey = "phc_yb1DOMUcKjOuY0kVNagZBJpfVr5Ct5d6dfCZbxO4h53"
	defaultHost   = "https://us.i.posthog.com"
)

const (
	apiKeyEnv   = "MCPBRIDGE_POSTHOG_API_KEY"
	disabledEnv = "MCPBRIDGE_ANALYTICS_DISABLED"
	enabledEnv  = "MCPBRIDGE_ANALYTICS_ENABLED"
)

// Event names sent to PostHog.
const (
	EventSessionStart       = "session_start"
	EventSessionEnd         = "session_end"
	EventRelayStarted       = "relay_started"
	EventServerConnected    = "server_connected"
	EventToolExecuted       = "tool_executed"
	EventUpstreamEnabled    = "upstream_proxy_enabled"
	EventProxychainsEnabled = "proxychains_enabled"
	EventBridgeError        = "bridge_error"
)

// enqueuer is the slice of the PostHog client the bridge uses.
type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

// Client sends anonymous usage events. A disabled client is a no-op on
// every method, so call sites never branch on whether analytics is on.
// Failures are logged at debug level and otherwise ignored; telemetry is
// never allowed to interrupt the bridge.
type Client struct {
	log        *slog.Logger
	enabled    bool
	posthog    enqueuer
	sessionID  string
	distinctID string
	version    string
}

// New builds an analytics client. The enabled flag comes from the caller's
// options; the environment can still veto it (MCPBRIDGE_ANALYTICS_DISABLED)
// or override it (MCPBRIDGE_ANALYTICS_ENABLED). When disabled for any
// reason a no-op client is returned.
func New(log *slog.Logger, version string, enabled bool) *Client {
	if log == nil {
		log = config.NopLogger()
	}

	log = log.With("component", "analytics")

	if !enabled || !envAllows() {
		return &Client{log: log}
	}

	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		apiKey = defaultAPIKey
	}

	ph, err := posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: defaultHost})
	if err != nil {
		log.Debug("Analytics initialization failed", "error", err)

		return &Client{log: log}
	}

	client := &Client{
		log:        log,
		enabled:    true,
		posthog:    ph,
		sessionID:  uuid.NewString(),
		distinctID: anonymousID(),
		version:    version,
	}

	log.Debug("Analytics initialized", "session", client.sessionID)

	return client
}

// Enabled reports whether events are actually sent.
func (c *Client) Enabled() bool {
	return c.enabled
}

// SessionID returns the random id shared by all events of this run.
func (c *Client) SessionID() string {
	return c.sessionID
}

// SessionStart records the beginning of an interactive session.
func (c *Client) SessionStart(serverType string) {
	props := posthog.NewProperties()
	if serverType != "" {
		props.Set("server_type", serverType)
	}

	c.capture(EventSessionStart, props)
}

// SessionEnd records the end of a session. Called from Close as well.
func (c *Client) SessionEnd() {
	c.capture(EventSessionEnd, nil)
}

// RelayStarted records that the local HTTP relay came up.
func (c *Client) RelayStarted(port int) {
	c.capture(EventRelayStarted, posthog.NewProperties().Set("port", port))
}

// ServerConnected records a successful connect, identified by the
// configuration key, never by command line or environment.
func (c *Client) ServerConnected(serverName, mechanism string) {
	c.capture(EventServerConnected, posthog.NewProperties().
		Set("server_name", serverName).
		Set("mechanism", mechanism))
}

// ToolExecuted records one tool invocation and whether it succeeded. Tool
// arguments are deliberately not included.
func (c *Client) ToolExecuted(tool string, success bool) {
	c.capture(EventToolExecuted, posthog.NewProperties().
		Set("tool", tool).
		Set("success", success))
}

// UpstreamProxyEnabled records that relay traffic is routed through an
// inspection proxy.
func (c *Client) UpstreamProxyEnabled() {
	c.capture(EventUpstreamEnabled, nil)
}

// ProxychainsEnabled records that the child was wrapped in proxychains.
func (c *Client) ProxychainsEnabled() {
	c.capture(EventProxychainsEnabled, nil)
}

// BridgeError records a failure by type only; messages may carry paths or
// hostnames and are never sent.
func (c *Client) BridgeError(errorType string) {
	c.capture(EventBridgeError, posthog.NewProperties().Set("error_type", errorType))
}

// Close sends the session end event and flushes the queue. Safe on a
// disabled client.
func (c *Client) Close() {
	if !c.enabled || c.posthog == nil {
		return
	}

	c.SessionEnd()

	if err := c.posthog.Close(); err != nil {
		c.log.Debug("Failed to flush analytics", "error", err)
	}
}

func (c *Client) capture(event string, props posthog.Properties) {
	if !c.enabled || c.posthog == nil {
		return
	}

	base := posthog.NewProperties().
		Set("session_id", c.sessionID).
		Set("version", c.version).
		Set("os", runtime.GOOS).
		Set("arch", runtime.GOARCH).
		Set("go_version", runtime.Version()).
		Set("timestamp", time.Now().UTC().Format(time.RFC3339))

	for key, value := range props {
		base[key] = value
	}

	err := c.posthog.Enqueue(posthog.Capture{
		DistinctId: c.distinctID,
		Event:      event,
		Properties: base,
	})
	if err != nil {
		c.log.Debug("Failed to enqueue analytics event", "event", event, "error", err)
	}
}

// envAllows applies the environment policy: an explicit disable wins, an
// explicit enable/disable via MCPBRIDGE_ANALYTICS_ENABLED is honored next,
// and the default is enabled.
func envAllows() bool {
	if isTruthy(os.Getenv(disabledEnv)) {
		return false
	}

	if value, ok := os.LookupEnv(enabledEnv); ok {
		return isTruthy(value)
	}

	return true
}

func isTruthy(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// anonymousID derives a stable distinct id from coarse machine traits,
// hashed so the traits themselves never leave the machine. Falls back to a
// random id when the hostname is unavailable.
func anonymousID() string {
	host, err := os.Hostname()
	if err != nil {
		return uuid.NewString()[:16]
	}

	machine := "mcpbridge:" + host + runtime.GOOS + runtime.GOARCH + runtime.Version()
	sum := sha256.Sum256([]byte(machine))

	return hex.EncodeToString(sum[:])[:16]
}
