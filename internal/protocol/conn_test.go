package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/appsecco/mcpbridge/internal/config"
	bridgeerrors "github.com/appsecco/mcpbridge/internal/errors"
)

// mockTransport is an in-memory Transport. Writes are parsed and exposed on
// a channel so tests can observe requests and inject matching responses.
type mockTransport struct {
	mu       sync.Mutex
	writes   []map[string]any
	writeErr error

	written chan map[string]any
	lines   chan string
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		written: make(chan map[string]any, 100),
		lines:   make(chan string, 100),
	}
}

func (m *mockTransport) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}

	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	m.writes = append(m.writes, msg)
	m.written <- msg

	return nil
}

func (m *mockTransport) Lines() <-chan string {
	return m.lines
}

// respond injects a server line built from the given envelope. Safe to
// call from responder goroutines.
func (m *mockTransport) respond(envelope map[string]any) {
	data, _ := json.Marshal(envelope)
	m.lines <- string(data)
}

// awaitWrite returns the next envelope the conn put on the wire.
func (m *mockTransport) awaitWrite(t *testing.T) map[string]any {
	t.Helper()

	select {
	case msg := <-m.written:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("conn never wrote to the transport")

		return nil
	}
}

func newTestConn(t *testing.T) (*Conn, *mockTransport) {
	t.Helper()

	transport := newMockTransport()
	conn := NewConn(config.NopLogger(), transport)
	conn.Start()
	t.Cleanup(conn.Close)

	return conn, transport
}

func TestConn_NextID_StartsAtOne(t *testing.T) {
	conn, _ := newTestConn(t)

	require.Equal(t, int64(1), conn.NextID())
	require.Equal(t, int64(2), conn.NextID())
	require.Equal(t, int64(3), conn.NextID())
}

func TestConn_CallRoundtrip(t *testing.T) {
	conn, transport := newTestConn(t)

	go func() {
		req := <-transport.written
		transport.respond(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  map[string]any{"ok": true},
		})
	}()

	envelope, err := conn.Call(context.Background(), "tools/list", nil)
	require.NoError(t, err)

	result, ok := Result(envelope)
	require.True(t, ok)
	require.Equal(t, true, result["ok"])
}

func TestConn_CallAllocatesSequentialIDs(t *testing.T) {
	conn, transport := newTestConn(t)

	// Echo-style responder: answer every request with its own id.
	go func() {
		for req := range transport.written {
			transport.respond(map[string]any{
				"jsonrpc": "2.0",
				"id":      req["id"],
				"result":  map[string]any{},
			})
		}
	}()

	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		_, err := conn.Call(ctx, "ping", nil)
		require.NoError(t, err)
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()

	require.Len(t, transport.writes, 3)

	for i, msg := range transport.writes {
		require.Equal(t, "2.0", msg["jsonrpc"])
		require.Equal(t, float64(i+1), msg["id"], "ids must be sequential starting at 1")
	}
}

func TestConn_Forward_PreservesExternalEnvelope(t *testing.T) {
	conn, transport := newTestConn(t)

	go func() {
		req := <-transport.written
		transport.respond(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  map[string]any{"content": []any{}},
		})
	}()

	envelope := map[string]any{
		"jsonrpc": "2.0",
		"id":      "ext-42",
		"method":  "tools/call",
		"params":  map[string]any{"name": "echo"},
	}

	resp, err := conn.Forward(context.Background(), envelope)
	require.NoError(t, err)
	require.Equal(t, "ext-42", resp["id"])

	// The envelope went over the wire untouched, string id included.
	transport.mu.Lock()
	defer transport.mu.Unlock()

	require.Len(t, transport.writes, 1)
	require.Equal(t, "ext-42", transport.writes[0]["id"])
	require.Equal(t, "tools/call", transport.writes[0]["method"])
}

func TestConn_Forward_RequiresID(t *testing.T) {
	conn, _ := newTestConn(t)

	_, err := conn.Forward(context.Background(), map[string]any{
		"jsonrpc": "2.0",
		"method":  "tools/list",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no id")
}

func TestConn_StrayNotificationDoesNotResolveCall(t *testing.T) {
	conn, transport := newTestConn(t)

	go func() {
		req := <-transport.written

		// A server-initiated notification lands first; the real response
		// follows. The call must receive the response, not the stray.
		transport.respond(map[string]any{
			"jsonrpc": "2.0",
			"method":  "notifications/message",
			"params":  map[string]any{"level": "info", "data": "noise"},
		})
		transport.respond(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  map[string]any{"answer": "real"},
		})
	}()

	envelope, err := conn.Call(context.Background(), "tools/list", nil)
	require.NoError(t, err)

	result, ok := Result(envelope)
	require.True(t, ok)
	require.Equal(t, "real", result["answer"])
}

func TestConn_LateResponseIsDropped(t *testing.T) {
	conn, transport := newTestConn(t)

	// No call is pending; a response for an unknown id must be discarded
	// without panicking or poisoning the conn.
	transport.respond(map[string]any{
		"jsonrpc": "2.0",
		"id":      99,
		"result":  map[string]any{},
	})

	go func() {
		req := <-transport.written
		transport.respond(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  map[string]any{"ok": true},
		})
	}()

	_, err := conn.Call(context.Background(), "ping", nil)
	require.NoError(t, err)
}

func TestConn_MalformedLineFailsPendingCall(t *testing.T) {
	conn, transport := newTestConn(t)

	go func() {
		<-transport.written
		transport.lines <- "Segmentation fault (core dumped)"
	}()

	_, err := conn.Call(context.Background(), "tools/list", nil)
	require.Error(t, err)

	var malformed *bridgeerrors.MalformedResponseError

	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "Segmentation fault (core dumped)", malformed.Line)
	require.True(t, bridgeerrors.IsBridgeError(err))
}

func TestConn_MalformedLineWhileIdleIsIgnored(t *testing.T) {
	conn, transport := newTestConn(t)

	transport.lines <- "npm WARN deprecated something"
	transport.lines <- ""

	go func() {
		req := <-transport.written
		transport.respond(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  map[string]any{},
		})
	}()

	_, err := conn.Call(context.Background(), "ping", nil)
	require.NoError(t, err)
}

func TestConn_EOFFailsPendingCallWithNoResponse(t *testing.T) {
	conn, transport := newTestConn(t)

	go func() {
		<-transport.written
		close(transport.lines)
	}()

	_, err := conn.Call(context.Background(), "tools/list", nil)
	require.ErrorIs(t, err, bridgeerrors.ErrNoResponse)
}

func TestConn_CallAfterEOFFailsFast(t *testing.T) {
	conn, transport := newTestConn(t)

	close(transport.lines)

	require.Eventually(t, func() bool {
		return conn.FatalError() != nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err := conn.Call(context.Background(), "ping", nil)
	require.ErrorIs(t, err, bridgeerrors.ErrNoResponse)
}

func TestConn_CallAfterCloseReturnsTransportClosed(t *testing.T) {
	conn, _ := newTestConn(t)

	conn.Close()

	_, err := conn.Call(context.Background(), "ping", nil)
	require.ErrorIs(t, err, bridgeerrors.ErrTransportClosed)

	err = conn.Notify(context.Background(), "notifications/initialized", nil)
	require.ErrorIs(t, err, bridgeerrors.ErrTransportClosed)
}

func TestConn_NotifyOmitsID(t *testing.T) {
	conn, transport := newTestConn(t)

	err := conn.Notify(context.Background(), "notifications/initialized", nil)
	require.NoError(t, err)

	msg := transport.awaitWrite(t)
	require.Equal(t, "notifications/initialized", msg["method"])

	_, hasID := msg["id"]
	require.False(t, hasID, "notifications must not carry an id")
}

func TestConn_ContextCancelCleansUpPending(t *testing.T) {
	conn, _ := newTestConn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.Call(ctx, "tools/list", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	conn.pendingMu.Lock()
	defer conn.pendingMu.Unlock()

	require.Empty(t, conn.pending, "cancelled call must deregister itself")
}

func TestConn_WriteErrorDeregistersPending(t *testing.T) {
	transport := newMockTransport()
	transport.writeErr = errors.New("broken pipe")

	conn := NewConn(config.NopLogger(), transport)
	conn.Start()
	t.Cleanup(conn.Close)

	_, err := conn.Call(context.Background(), "ping", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken pipe")

	conn.pendingMu.Lock()
	defer conn.pendingMu.Unlock()

	require.Empty(t, conn.pending)
}

func TestConn_SetFatalError_MultipleCalls(t *testing.T) {
	conn, _ := newTestConn(t)

	// First error should be stored
	conn.SetFatalError(errors.New("first error"))
	require.EqualError(t, conn.FatalError(), "first error")

	// Second call should not panic, and first error is preserved
	conn.SetFatalError(errors.New("second error"))
	require.EqualError(t, conn.FatalError(), "first error")
}

func TestConn_Close_MultipleCalls(t *testing.T) {
	conn, _ := newTestConn(t)

	conn.Close()
	conn.Close()
	conn.Close()

	select {
	case <-conn.Done():
		// Expected
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestConn_ConcurrentCallsAreSerialized(t *testing.T) {
	conn, transport := newTestConn(t)

	go func() {
		for req := range transport.written {
			transport.respond(map[string]any{
				"jsonrpc": "2.0",
				"id":      req["id"],
				"result":  map[string]any{},
			})
		}
	}()

	ctx := context.Background()

	var wg sync.WaitGroup

	const numCallers = 8

	errs := make([]error, numCallers)

	for i := range numCallers {
		wg.Add(1)

		go func(slot int) {
			defer wg.Done()

			_, errs[slot] = conn.Call(ctx, "ping", nil)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Every caller got a distinct id.
	transport.mu.Lock()
	defer transport.mu.Unlock()

	seen := make(map[float64]bool)
	for _, msg := range transport.writes {
		id := msg["id"].(float64)
		require.False(t, seen[id], "id %v reused", id)
		seen[id] = true
	}
}

func TestConn_ResponseAfterCancel_Race(t *testing.T) {
	// Races a cancelled call against its arriving response.
	// Run with: go test -race -count=100
	for range 50 {
		transport := newMockTransport()
		conn := NewConn(config.NopLogger(), transport)
		conn.Start()

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)

		var wg sync.WaitGroup

		wg.Add(2)

		go func() {
			defer wg.Done()

			_, _ = conn.Call(ctx, "ping", nil)
		}()

		go func() {
			defer wg.Done()

			select {
			case req := <-transport.written:
				data, _ := json.Marshal(map[string]any{
					"jsonrpc": "2.0",
					"id":      req["id"],
					"result":  map[string]any{},
				})
				transport.lines <- string(data)
			case <-time.After(10 * time.Millisecond):
			}
		}()

		wg.Wait()
		cancel()
		conn.Close()
	}
}
