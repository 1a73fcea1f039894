package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/appsecco/mcpbridge/internal/config"
	bridgeerrors "github.com/appsecco/mcpbridge/internal/errors"
)

// Transport is the minimal interface the conn needs from a server process.
//
// It is satisfied by subprocess.Process but allows testing with pipes.
type Transport interface {
	// Write sends one framed message to the server.
	Write(ctx context.Context, data []byte) error
	// Lines delivers the server's stdout lines in order. The channel
	// closes when the server's stdout reaches EOF.
	Lines() <-chan string
}

// Conn speaks JSON-RPC over a server's stdio transport.
//
// The conn owns the request id counter for its server process: ids are
// monotonically increasing integers starting at 1 and are never reused,
// regardless of which path (direct or relayed) a request took. Responses are
// correlated to waiting calls by id, so a late response or a stray server
// notification cannot be handed to the wrong caller.
//
// Only one request is on the wire at a time. The in-flight lock spans
// register, write, and await, which is what keeps correlation trivial for
// servers that answer strictly in order.
//
// A Conn is bound to one server process and dies with it. Create a new one
// after relaunching the server.
type Conn struct {
	log       *slog.Logger
	transport Transport

	nextID atomic.Int64

	// callMu serializes request/notification sends.
	callMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]*pendingCall

	errMu    sync.RWMutex
	fatalErr error

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// pendingCall tracks an outgoing request awaiting its response.
type pendingCall struct {
	method string
	result chan callResult
}

type callResult struct {
	envelope map[string]any
	err      error
}

// NewConn creates a conn over the given transport. Call Start before
// issuing requests.
func NewConn(log *slog.Logger, transport Transport) *Conn {
	if log == nil {
		log = config.NopLogger()
	}

	return &Conn{
		log:       log.With("component", "protocol"),
		transport: transport,
		pending:   make(map[string]*pendingCall),
		done:      make(chan struct{}),
	}
}

// Start begins reading and routing server output.
func (c *Conn) Start() {
	c.wg.Add(1)

	go c.readLoop()

	c.log.Debug("Connection started")
}

// Close stops the conn. Blocked calls fail fast with ErrTransportClosed.
// Safe to call multiple times.
func (c *Conn) Close() {
	c.closeDone()
	c.wg.Wait()

	c.log.Debug("Connection closed")
}

// Done returns a channel that is closed when the conn stops.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// closeDone closes the done channel exactly once.
func (c *Conn) closeDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// SetFatalError stores a fatal transport error and broadcasts to all
// waiters by closing done.
func (c *Conn) SetFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

// FatalError returns the fatal transport error if one occurred.
func (c *Conn) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

// NextID allocates the next request id. The first id handed out is 1.
func (c *Conn) NextID() int64 {
	return c.nextID.Add(1)
}

// Call allocates an id, sends a request for method with the given params,
// and awaits the matching response envelope. Timeouts come from ctx.
func (c *Conn) Call(ctx context.Context, method string, params any) (map[string]any, error) {
	return c.Forward(ctx, NewRequest(c.NextID(), method, params))
}

// Forward sends a prebuilt request envelope verbatim and awaits the
// response carrying the same id. The envelope must have an id; relayed
// client envelopes and router-built requests both pass through here.
func (c *Conn) Forward(ctx context.Context, envelope map[string]any) (map[string]any, error) {
	id, ok := envelope["id"]
	if !ok || id == nil {
		return nil, fmt.Errorf("request envelope has no id")
	}

	key := fmt.Sprintf("%v", id)
	method, _ := envelope["method"].(string)

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// One request on the wire at a time.
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.closedErr(); err != nil {
		return nil, err
	}

	pending := &pendingCall{
		method: method,
		result: make(chan callResult, 1),
	}

	c.pendingMu.Lock()
	c.pending[key] = pending
	c.pendingMu.Unlock()

	c.log.Debug("Sending request", "id", key, "method", method)

	if err := c.transport.Write(ctx, data); err != nil {
		c.removePending(key)

		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case res := <-pending.result:
		if res.err != nil {
			c.log.Warn("Request failed", "id", key, "method", method, "error", res.err)

			return nil, res.err
		}

		c.log.Debug("Received response", "id", key, "method", method)

		return res.envelope, nil

	case <-c.done:
		c.removePending(key)

		return nil, c.closedErr()

	case <-ctx.Done():
		c.removePending(key)

		c.log.Debug("Request cancelled", "id", key, "method", method)

		return nil, ctx.Err()
	}
}

// Notify sends a notification for method. Notifications carry no id and
// expect no response.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	return c.ForwardNotification(ctx, NewNotification(method, params))
}

// ForwardNotification sends a prebuilt id-less envelope verbatim.
func (c *Conn) ForwardNotification(ctx context.Context, envelope map[string]any) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.closedErr(); err != nil {
		return err
	}

	c.log.Debug("Sending notification", "method", envelope["method"])

	if err := c.transport.Write(ctx, data); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	return nil
}

// closedErr reports why the conn is unusable, or nil while it is open.
func (c *Conn) closedErr() error {
	select {
	case <-c.done:
		if err := c.FatalError(); err != nil {
			return fmt.Errorf("transport error: %w", err)
		}

		return bridgeerrors.ErrTransportClosed
	default:
		return nil
	}
}

func (c *Conn) removePending(key string) {
	c.pendingMu.Lock()
	delete(c.pending, key)
	c.pendingMu.Unlock()
}

// failAllPending delivers err to every waiting call.
func (c *Conn) failAllPending(err error) {
	c.pendingMu.Lock()

	for key, pending := range c.pending {
		delete(c.pending, key)
		pending.result <- callResult{err: err}
	}

	c.pendingMu.Unlock()
}

// readLoop routes server stdout lines to waiting calls.
func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer c.log.Debug("Read loop stopped")

	lines := c.transport.Lines()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Server stdout reached EOF. Anything still awaited will
				// never arrive.
				c.failAllPending(bridgeerrors.ErrNoResponse)

				select {
				case <-c.done:
				default:
					c.SetFatalError(bridgeerrors.ErrNoResponse)
				}

				return
			}

			c.handleLine(line)

		case <-c.done:
			return
		}
	}
}

// handleLine parses one stdout line and routes it by id.
func (c *Conn) handleLine(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	var msg map[string]any

	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		// Plenty of servers log plain text to stdout. Harmless while
		// idle, but it kills the outstanding await: the response the
		// caller is waiting on may be garbled beyond recognition.
		c.log.Debug("Discarding non-JSON stdout line", "line", trimmed)
		c.failAllPending(&bridgeerrors.MalformedResponseError{Line: trimmed, Err: err})

		return
	}

	id, hasID := msg["id"]
	if !hasID || id == nil {
		// Server-initiated notification. The bridge registers no
		// server-to-client handlers, so log and drop.
		c.log.Debug("Server notification", "method", msg["method"])

		return
	}

	key := fmt.Sprintf("%v", id)

	c.pendingMu.Lock()

	pending, exists := c.pending[key]
	if exists {
		delete(c.pending, key)
	}

	c.pendingMu.Unlock()

	if !exists {
		c.log.Warn("No pending request for response", "id", key)

		return
	}

	// Buffered channel, the send cannot block.
	pending.result <- callResult{envelope: msg}
}
