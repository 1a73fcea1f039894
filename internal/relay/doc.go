// Package relay exposes the stdio connection of the active MCP server over
// local HTTP, so that inspection proxies and browser tooling can observe
// and replay the traffic.
//
// The server accepts JSON-RPC envelopes as POST bodies on /mcp, forwards
// them over stdio, and answers with the child's response. Forwarding
// failures become 500 responses with an {"error", "type"} body instead of
// crashing the listener. CORS preflight requests are answered permissively.
package relay
