// Package router decides how each outbound call reaches the MCP server:
// over HTTP through the local relay (optionally via an upstream inspection
// proxy) or directly over stdio. Any HTTP-path failure degrades to the
// stdio path with a fresh request id, so a dead relay or proxy slows calls
// down but never breaks them.
package router
