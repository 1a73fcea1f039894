package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/appsecco/mcpbridge/internal/config"
	bridgeerrors "github.com/appsecco/mcpbridge/internal/errors"
	"github.com/appsecco/mcpbridge/internal/protocol"
)

// Conn is the stdio connection surface the router falls back to when the
// HTTP path is unavailable. Satisfied by protocol.Conn.
type Conn interface {
	NextID() int64
	Call(ctx context.Context, method string, params any) (map[string]any, error)
	Notify(ctx context.Context, method string, params any) error
}

// Config selects the route outbound calls take.
type Config struct {
	// RelayURL is the full relay endpoint, e.g. http://127.0.0.1:3000/mcp.
	RelayURL string

	// UpstreamProxy is the inspection proxy relay traffic is routed
	// through when ViaUpstream is set. Ignored when nil.
	UpstreamProxy *url.URL

	// ViaUpstream sends relay HTTP calls through UpstreamProxy so the
	// traffic can be observed and tampered with.
	ViaUpstream bool

	// RelayEnabled routes calls over HTTP at all. When false every call
	// goes straight to stdio.
	RelayEnabled bool

	// CallTimeout bounds the HTTP leg of result-bearing calls.
	CallTimeout time.Duration

	// NotifyTimeout bounds the HTTP leg of notification calls.
	NotifyTimeout time.Duration
}

// Router sends each call over the configured HTTP route and falls back to
// the bound stdio connection when that route fails for any reason. The
// fallback allocates a fresh request id, never reusing the one spent on
// the HTTP attempt.
type Router struct {
	log *slog.Logger
	cfg Config

	mu   sync.RWMutex
	conn Conn

	callClient   *http.Client
	notifyClient *http.Client
}

// New builds a router. The two HTTP clients share one transport so relay
// connections are pooled; they differ only in timeout.
func New(log *slog.Logger, cfg Config) *Router {
	if log == nil {
		log = config.NopLogger()
	}

	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = config.DefaultCallTimeout
	}

	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = config.DefaultNotifyTimeout
	}

	transport := &http.Transport{}
	if cfg.ViaUpstream && cfg.UpstreamProxy != nil {
		transport.Proxy = http.ProxyURL(cfg.UpstreamProxy)
	}

	return &Router{
		log:          log.With("component", "router"),
		cfg:          cfg,
		callClient:   &http.Client{Transport: transport, Timeout: cfg.CallTimeout},
		notifyClient: &http.Client{Transport: transport, Timeout: cfg.NotifyTimeout},
	}
}

// Bind re-targets the stdio fallback. Called whenever a new server is
// connected, since each server gets its own connection.
func (r *Router) Bind(conn Conn) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
}

func (r *Router) currentConn() Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.conn
}

// ViaUpstream reports whether calls are currently routed through the
// upstream inspection proxy.
func (r *Router) ViaUpstream() bool {
	return r.cfg.ViaUpstream && r.cfg.UpstreamProxy != nil
}

// Call issues a result-bearing request. With the relay enabled the
// envelope is POSTed to the relay endpoint, optionally through the
// upstream proxy; a transport error, non-200 status, or unparseable body
// all degrade to a direct stdio call.
func (r *Router) Call(ctx context.Context, method string, params any) (map[string]any, error) {
	conn := r.currentConn()
	if conn == nil {
		return nil, bridgeerrors.ErrNotConnected
	}

	if !r.cfg.RelayEnabled {
		return conn.Call(ctx, method, params)
	}

	envelope := protocol.NewRequest(conn.NextID(), method, params)

	response, err := r.post(ctx, r.callClient, envelope)
	if err != nil {
		r.log.Warn("HTTP request failed, falling back to stdio", "method", method, "error", err)

		return conn.Call(ctx, method, params)
	}

	return response, nil
}

// Notify issues a fire-and-forget notification. The relay acknowledges
// notifications with a synthetic body, which is discarded here; a failed
// HTTP leg falls back to writing the notification directly to stdio.
func (r *Router) Notify(ctx context.Context, method string, params any) error {
	conn := r.currentConn()
	if conn == nil {
		return bridgeerrors.ErrNotConnected
	}

	if !r.cfg.RelayEnabled {
		return conn.Notify(ctx, method, params)
	}

	envelope := protocol.NewNotification(method, params)

	if _, err := r.post(ctx, r.notifyClient, envelope); err != nil {
		r.log.Warn("HTTP notification failed, falling back to stdio", "method", method, "error", err)

		return conn.Notify(ctx, method, params)
	}

	return nil
}

// post sends one envelope to the relay and decodes the response body.
// Every failure is wrapped in a RelayError so callers can log the HTTP
// detail before falling back.
func (r *Router) post(ctx context.Context, client *http.Client, envelope map[string]any) (map[string]any, error) {
	trace := ulid.Make().String()

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.RelayURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build relay request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	r.log.Debug("Routing request through relay",
		"url", r.cfg.RelayURL,
		"via_upstream", r.ViaUpstream(),
		"trace", trace)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &bridgeerrors.RelayError{Err: err}
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &bridgeerrors.RelayError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &bridgeerrors.RelayError{Status: resp.StatusCode, Body: string(body)}
	}

	var response map[string]any
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &bridgeerrors.RelayError{Status: resp.StatusCode, Body: string(body), Err: err}
	}

	r.log.Debug("Relay response received", "status", resp.StatusCode, "trace", trace)

	return response, nil
}
