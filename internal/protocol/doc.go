// Package protocol implements JSON-RPC message handling for stdio MCP servers.
//
// The protocol package provides a Conn that manages request/response
// correlation over a server's stdin/stdout. It owns the request id counter
// for its server process, serializes sends so only one request is on the
// wire at a time, and routes responses back to waiting calls by id.
//
// The Conn handles:
//   - Allocating monotonic integer request ids (starting at 1)
//   - Sending request and notification envelopes, prebuilt or constructed
//   - Correlating response envelopes to waiting calls
//   - Surfacing transport EOF and malformed output as typed errors
//
// Example usage:
//
//	proc := subprocess.NewProcess(name, spec, options)
//	proc.Start()
//
//	conn := protocol.NewConn(log, proc)
//	conn.Start()
//
//	resp, err := conn.Call(ctx, "tools/list", nil)
package protocol
