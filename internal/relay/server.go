package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/appsecco/mcpbridge/internal/config"
	"github.com/appsecco/mcpbridge/internal/protocol"
)

// relayErrorType tags error bodies so callers can tell a relay-level
// failure apart from a JSON-RPC error produced by the child.
const relayErrorType = "relay_error"

const readHeaderTimeout = 10 * time.Second

// Forwarder is the subset of the protocol connection the relay needs to
// push envelopes to the child process.
type Forwarder interface {
	Forward(ctx context.Context, envelope map[string]any) (map[string]any, error)
	ForwardNotification(ctx context.Context, envelope map[string]any) error
}

// Server is the local HTTP listener that bridges POST /mcp bodies onto the
// stdio connection of the currently active server. The active connection is
// swapped with Rebind when a different server is selected, so inspection
// clients keep a stable URL across server switches.
type Server struct {
	log  *slog.Logger
	port int

	mu        sync.RWMutex
	forwarder Forwarder

	listener   net.Listener
	httpServer *http.Server
	eg         *errgroup.Group

	shutdownOnce sync.Once
}

// NewServer creates a relay bound to 127.0.0.1 on the given port. Port 0
// picks a free port; the effective address is available from URL after
// Start. The relay serves nothing until Start is called.
func NewServer(log *slog.Logger, port int) *Server {
	if log == nil {
		log = config.NopLogger()
	}

	return &Server{
		log:  log.With("component", "relay"),
		port: port,
	}
}

// Start binds the listener and begins serving in a background goroutine.
// A bind failure (typically the port already being in use) is returned
// immediately rather than surfacing later from the serve loop.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("relay listen on %s: %w", addr, err)
	}

	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// The serve loop is tied to Shutdown, not to the startup context, so
	// the relay outlives whatever timeout the caller used for Start.
	s.eg, _ = errgroup.WithContext(context.Background())
	s.eg.Go(func() error {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay serve: %w", err)
		}

		return nil
	})

	s.log.Info("Relay server listening", "url", s.URL())

	return nil
}

// Shutdown stops the listener and waits for in-flight requests to drain.
// Safe to call multiple times and before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	var err error

	s.shutdownOnce.Do(func() {
		err = s.httpServer.Shutdown(ctx)
		if werr := s.eg.Wait(); werr != nil && err == nil {
			err = werr
		}

		s.log.Info("Relay server stopped")
	})

	return err
}

// URL returns the relay endpoint, including the /mcp path. Before Start it
// is computed from the configured port; after Start it reflects the bound
// address, which matters when the server was created with port 0.
func (s *Server) URL() string {
	if s.listener == nil {
		return fmt.Sprintf("http://127.0.0.1:%d/mcp", s.port)
	}

	return fmt.Sprintf("http://%s/mcp", s.listener.Addr().String())
}

// Rebind swaps the connection that POST bodies are forwarded to. Passing
// nil detaches the relay; requests then fail with a relay error until a
// new connection is bound.
func (s *Server) Rebind(forwarder Forwarder) {
	s.mu.Lock()
	s.forwarder = forwarder
	s.mu.Unlock()
}

func (s *Server) currentForwarder() Forwarder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.forwarder
}

// handle dispatches every inbound request. Each error path answers with a
// structured JSON body; nothing is allowed to escape and take down the
// serve loop.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("Relay handler panic", "panic", rec, "path", r.URL.Path)
			s.writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error": fmt.Sprintf("internal error: %v", rec),
				"type":  relayErrorType,
			})
		}
	}()

	// Preflight requests are answered for any path so browser-based
	// inspection clients can probe freely.
	if r.Method == http.MethodOptions {
		setCORSHeaders(w)
		w.WriteHeader(http.StatusOK)

		return
	}

	if r.URL.Path != "/mcp" {
		s.log.Warn("Relay request to unknown path", "path", r.URL.Path)
		s.writeJSON(w, http.StatusNotFound, map[string]any{
			"error": fmt.Sprintf("Path %s not found", r.URL.Path),
		})

		return
	}

	if r.Method != http.MethodPost {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"error": fmt.Sprintf("Method %s not allowed", r.Method),
		})

		return
	}

	s.handlePost(w, r)
}

// handlePost parses the body as a JSON-RPC envelope and forwards it over
// stdio. Envelopes without an id are notifications: they are written to the
// child and acknowledged immediately with a synthetic result, since no
// reply will ever arrive for them.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.relayError(w, fmt.Errorf("read request body: %w", err))

		return
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		s.relayError(w, fmt.Errorf("parse request body: %w", err))

		return
	}

	forwarder := s.currentForwarder()
	if forwarder == nil {
		s.relayError(w, errors.New("no server connected"))

		return
	}

	if protocol.IsNotification(envelope) {
		if err := forwarder.ForwardNotification(r.Context(), envelope); err != nil {
			s.relayError(w, err)

			return
		}

		s.writeEnvelope(w, map[string]any{"result": "accepted"})

		return
	}

	response, err := forwarder.Forward(r.Context(), envelope)
	if err != nil {
		s.relayError(w, err)

		return
	}

	s.writeEnvelope(w, response)
}

func (s *Server) relayError(w http.ResponseWriter, err error) {
	s.log.Error("Relay forwarding failed", "error", err)

	s.writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": err.Error(),
		"type":  relayErrorType,
	})
}

func (s *Server) writeEnvelope(w http.ResponseWriter, envelope map[string]any) {
	setCORSHeaders(w)
	s.writeJSON(w, http.StatusOK, envelope)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Failed to write relay response", "error", err)
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}
