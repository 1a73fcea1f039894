// Package client implements the bridge client behind the root package.
//
// A client owns the full chain for one server at a time: the supervised
// server process, the JSON-RPC conn over its stdio, the local HTTP relay,
// and the router that picks the route each call takes. Connect swaps the
// chain over to a new server; Close tears everything down.
//
// The root mcpbridge package wraps this client in its public interface;
// nothing here is part of the supported API surface.
package client
