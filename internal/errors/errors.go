package errors

import (
	"errors"
	"fmt"
)

// BridgeError is the base interface for all bridge errors.
type BridgeError interface {
	error
	IsBridgeError() bool
}

// Compile-time verification that all error types implement BridgeError.
var (
	_ BridgeError = (*SpawnError)(nil)
	_ BridgeError = (*ProcessExitedError)(nil)
	_ BridgeError = (*ReadinessError)(nil)
	_ BridgeError = (*MalformedResponseError)(nil)
	_ BridgeError = (*RelayError)(nil)
	_ BridgeError = (*UnknownToolError)(nil)
)

// IsBridgeError reports whether any error in err's chain is a BridgeError.
func IsBridgeError(err error) bool {
	var bridgeErr BridgeError

	return errors.As(err, &bridgeErr)
}

// Sentinel errors for commonly checked conditions.
var (
	// ErrNotConnected indicates no server is connected.
	ErrNotConnected = errors.New("not connected: call Connect first")

	// ErrClientClosed indicates the client has been closed and cannot be reused.
	ErrClientClosed = errors.New("client closed: clients are single-use, create a new one with New()")

	// ErrNoServers indicates the configuration defines no servers.
	ErrNoServers = errors.New("no servers defined in configuration")

	// ErrTransportClosed indicates the server process has no open stdio channel.
	ErrTransportClosed = errors.New("stdio transport closed")

	// ErrNoResponse indicates the server's stdout reached end-of-stream
	// while a response was still awaited.
	ErrNoResponse = errors.New("no response from server")
)

// SpawnError indicates the server process could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *SpawnError) IsBridgeError() bool { return true }

// ProcessExitedError indicates the server process exited before it became
// ready. Buffered startup output is preserved for diagnostics.
type ProcessExitedError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ProcessExitedError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("server process exited during startup (exit %d): %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("server process exited during startup (exit %d)", e.ExitCode)
}

// IsBridgeError implements BridgeError.
func (e *ProcessExitedError) IsBridgeError() bool { return true }

// ReadinessError indicates an error indicator was matched in the server's
// startup output. The offending line and its stream are preserved.
type ReadinessError struct {
	Line   string
	Stream string
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("server startup failed (%s): %s", e.Stream, e.Line)
}

// IsBridgeError implements BridgeError.
func (e *ReadinessError) IsBridgeError() bool { return true }

// MalformedResponseError indicates a stdout line could not be parsed as JSON
// while a response was awaited. The raw line is preserved.
type MalformedResponseError struct {
	Line string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from server: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *MalformedResponseError) IsBridgeError() bool { return true }

// RelayError indicates the HTTP relay leg of a call failed. The router
// recovers from it by falling back to stdio; it surfaces only when no
// fallback is available.
type RelayError struct {
	Status int
	Body   string
	Err    error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relay request failed: %v", e.Err)
	}

	return fmt.Sprintf("relay returned status %d: %s", e.Status, e.Body)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// IsBridgeError implements BridgeError.
func (e *RelayError) IsBridgeError() bool { return true }

// UnknownToolError indicates a tool name was not present in the cached
// catalog. The check is advisory: the server remains the authority on which
// tools exist.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q not present in catalog", e.Name)
}

// IsBridgeError implements BridgeError.
func (e *UnknownToolError) IsBridgeError() bool { return true }
