package protocol

import "fmt"

// NewRequest builds a JSON-RPC request envelope. The params member is
// omitted entirely when params is nil, matching what stdio MCP servers
// expect on the wire.
func NewRequest(id int64, method string, params any) map[string]any {
	envelope := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		envelope["params"] = params
	}

	return envelope
}

// NewNotification builds an id-less JSON-RPC envelope.
func NewNotification(method string, params any) map[string]any {
	envelope := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
	}
	if params != nil {
		envelope["params"] = params
	}

	return envelope
}

// IsNotification reports whether a request envelope is a notification.
// By JSON-RPC rules that means it carries no id; the method name is not
// consulted.
func IsNotification(envelope map[string]any) bool {
	id, ok := envelope["id"]

	return !ok || id == nil
}

// EnvelopeError extracts the error member of a response envelope. Returns
// nil when the response is a success.
func EnvelopeError(envelope map[string]any) error {
	raw, ok := envelope["error"]
	if !ok || raw == nil {
		return nil
	}

	if obj, ok := raw.(map[string]any); ok {
		message, _ := obj["message"].(string)
		if code, ok := obj["code"].(float64); ok {
			return fmt.Errorf("server error %d: %s", int(code), message)
		}

		if message != "" {
			return fmt.Errorf("server error: %s", message)
		}
	}

	return fmt.Errorf("server error: %v", raw)
}

// Result extracts the result member of a response envelope as an object.
// The second return is false when the result is absent or not an object.
func Result(envelope map[string]any) (map[string]any, bool) {
	result, ok := envelope["result"].(map[string]any)

	return result, ok
}
