// Package errors defines error types for the MCP bridge.
//
// This package provides structured error types that wrap the failure
// scenarios of supervising a stdio MCP server and relaying traffic to it.
// All error types support error unwrapping and can be checked using
// errors.Is, errors.As, and errors.AsType.
package errors
