package mcpbridge

import "github.com/appsecco/mcpbridge/internal/errors"

// Re-export error types from internal package

// SpawnError indicates the server process could not be started.
type SpawnError = errors.SpawnError

// ProcessExitedError indicates the server process died during startup.
type ProcessExitedError = errors.ProcessExitedError

// ReadinessError indicates the server never signaled readiness in time.
type ReadinessError = errors.ReadinessError

// MalformedResponseError indicates a server stdout line was not valid JSON.
type MalformedResponseError = errors.MalformedResponseError

// RelayError indicates the HTTP leg of a relayed call failed.
type RelayError = errors.RelayError

// UnknownToolError indicates a tool name missing from the cached catalog.
type UnknownToolError = errors.UnknownToolError

// BridgeError is the base interface for all bridge errors.
type BridgeError = errors.BridgeError

// Re-export sentinel errors from internal package.
var (
	// ErrNotConnected indicates no server is connected.
	ErrNotConnected = errors.ErrNotConnected

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.ErrClientClosed

	// ErrNoServers indicates the configuration defines no servers.
	ErrNoServers = errors.ErrNoServers

	// ErrTransportClosed indicates the server process has no open stdio channel.
	ErrTransportClosed = errors.ErrTransportClosed

	// ErrNoResponse indicates the server's stdout ended while a response
	// was still awaited.
	ErrNoResponse = errors.ErrNoResponse
)
