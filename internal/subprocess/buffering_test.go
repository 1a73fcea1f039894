package subprocess

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// mockChunkReader delivers data in controlled chunks to simulate various buffering scenarios.
type mockChunkReader struct {
	chunks [][]byte
	index  int
}

func newMockChunkReader(chunks ...string) *mockChunkReader {
	byteChunks := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		byteChunks[i] = []byte(chunk)
	}

	return &mockChunkReader{chunks: byteChunks}
}

func (r *mockChunkReader) Read(p []byte) (int, error) {
	if r.index >= len(r.chunks) {
		return 0, io.EOF
	}

	chunk := r.chunks[r.index]
	r.index++

	n := copy(p, chunk)

	return n, nil
}

// TestMultipleResponsesOnSingleRead tests parsing when multiple JSON-RPC
// responses are delivered in a single read but separated by newlines.
func TestMultipleResponsesOnSingleRead(t *testing.T) {
	resp1 := map[string]any{"jsonrpc": "2.0", "id": 1, "result": map[string]any{"tools": []any{}}}
	resp2 := map[string]any{"jsonrpc": "2.0", "id": 2, "result": map[string]any{"status": "ok"}}

	json1, err := json.Marshal(resp1)
	require.NoError(t, err)

	json2, err := json.Marshal(resp2)
	require.NoError(t, err)

	bufferedLine := string(json1) + "\n" + string(json2) + "\n"

	reader := newMockChunkReader(bufferedLine)
	messages := parseJSONLines(t, reader)

	require.Len(t, messages, 2)
	require.Equal(t, float64(1), messages[0]["id"])
	require.Equal(t, float64(2), messages[1]["id"])
}

// TestJSONWithEmbeddedNewlines tests parsing responses that contain newline
// characters in string values (which are escaped as \n in JSON).
func TestJSONWithEmbeddedNewlines(t *testing.T) {
	resp1 := map[string]any{
		"jsonrpc": "2.0", "id": 1,
		"result": map[string]any{"text": "Line 1\nLine 2\nLine 3"},
	}
	resp2 := map[string]any{
		"jsonrpc": "2.0", "id": 2,
		"result": map[string]any{"text": "Some\nMultiline\nContent"},
	}

	json1, err := json.Marshal(resp1)
	require.NoError(t, err)

	json2, err := json.Marshal(resp2)
	require.NoError(t, err)

	bufferedLine := string(json1) + "\n" + string(json2) + "\n"

	reader := newMockChunkReader(bufferedLine)
	messages := parseJSONLines(t, reader)

	require.Len(t, messages, 2)

	result1, ok := messages[0]["result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Line 1\nLine 2\nLine 3", result1["text"])

	result2, ok := messages[1]["result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Some\nMultiline\nContent", result2["text"])
}

// TestMultipleNewlinesBetweenResponses tests parsing with multiple blank
// lines between responses, which some servers emit between log flushes.
func TestMultipleNewlinesBetweenResponses(t *testing.T) {
	resp1 := map[string]any{"jsonrpc": "2.0", "id": 7, "result": map[string]any{}}
	resp2 := map[string]any{"jsonrpc": "2.0", "id": 8, "result": map[string]any{}}

	json1, err := json.Marshal(resp1)
	require.NoError(t, err)

	json2, err := json.Marshal(resp2)
	require.NoError(t, err)

	bufferedLine := string(json1) + "\n\n\n" + string(json2) + "\n"

	reader := newMockChunkReader(bufferedLine)
	messages := parseJSONLinesSkipEmpty(t, reader)

	require.Len(t, messages, 2)
	require.Equal(t, float64(7), messages[0]["id"])
	require.Equal(t, float64(8), messages[1]["id"])
}

// TestSplitResponseAcrossMultipleReads tests parsing when a single response
// is split across multiple stream reads.
func TestSplitResponseAcrossMultipleReads(t *testing.T) {
	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      3,
		"result": map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": strings.Repeat("x", 1000)},
			},
			"isError": false,
		},
	}

	completeJSON, err := json.Marshal(resp)
	require.NoError(t, err)

	completeJSON = append(completeJSON, '\n')

	part1 := string(completeJSON[:100])
	part2 := string(completeJSON[100:250])
	part3 := string(completeJSON[250:])

	reader := newMockChunkReader(part1, part2, part3)
	messages := parseJSONLines(t, reader)

	require.Len(t, messages, 1)
	require.Equal(t, float64(3), messages[0]["id"])

	result, ok := messages[0]["result"].(map[string]any)
	require.True(t, ok)

	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)
}

// TestLargeToolListing tests parsing a large minified tools/list response
// that spans multiple 64KB chunks.
func TestLargeToolListing(t *testing.T) {
	tools := make([]map[string]any, 1000)
	for i := range tools {
		tools[i] = map[string]any{
			"name":        "tool_" + strings.Repeat("x", 20),
			"description": strings.Repeat("d", 100),
			"inputSchema": map[string]any{"type": "object"},
		}
	}

	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"result":  map[string]any{"tools": tools},
	}

	completeJSON, err := json.Marshal(resp)
	require.NoError(t, err)

	completeJSON = append(completeJSON, '\n')

	chunkSize := 64 * 1024

	var chunks []string

	for i := 0; i < len(completeJSON); i += chunkSize {
		end := min(i+chunkSize, len(completeJSON))
		chunks = append(chunks, string(completeJSON[i:end]))
	}

	reader := newMockChunkReader(chunks...)
	messages := parseJSONLines(t, reader)

	require.Len(t, messages, 1)
	require.Equal(t, float64(2), messages[0]["id"])

	result, ok := messages[0]["result"].(map[string]any)
	require.True(t, ok)

	listed, ok := result["tools"].([]any)
	require.True(t, ok)
	require.Len(t, listed, 1000)
}

// TestBufferSizeExceeded tests that exceeding the scanner buffer size returns an error.
func TestBufferSizeExceeded(t *testing.T) {
	customLimit := 1024
	hugeContent := strings.Repeat("x", customLimit+100)
	incompleteJSON := `{"data": "` + hugeContent + `"}` + "\n"

	reader := strings.NewReader(incompleteJSON)

	scanner := bufio.NewScanner(reader)

	buf := make([]byte, customLimit)
	scanner.Buffer(buf, customLimit)

	scanned := scanner.Scan()
	require.False(t, scanned)
	require.Error(t, scanner.Err())
	require.Contains(t, scanner.Err().Error(), "token too long")
}

// TestScanTokenSizeFitsToolResults tests that the transport's scanner limit
// accommodates responses far beyond the bufio default.
func TestScanTokenSizeFitsToolResults(t *testing.T) {
	bigText := strings.Repeat("x", 200*1024)
	validJSON := `{"jsonrpc":"2.0","id":1,"result":{"text":"` + bigText + `"}}` + "\n"

	reader := strings.NewReader(validJSON)
	scanner := bufio.NewScanner(reader)

	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	require.True(t, scanner.Scan())
	require.NoError(t, scanner.Err())

	var msg map[string]any

	err := json.Unmarshal(scanner.Bytes(), &msg)
	require.NoError(t, err)
	require.Equal(t, float64(1), msg["id"])
}

// TestMixedCompleteAndSplitResponses tests handling a mix of complete and
// split responses, the shape of a real handshake followed by a large call.
func TestMixedCompleteAndSplitResponses(t *testing.T) {
	initResp := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"result": map[string]any{
			"protocolVersion": "2025-06-18",
			"serverInfo":      map[string]any{"name": "echo", "version": "1.0.0"},
		},
	}

	largeResp := map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"result": map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": strings.Repeat("y", 5000)},
			},
		},
	}

	notification := map[string]any{
		"jsonrpc": "2.0",
		"method":  "notifications/message",
		"params":  map[string]any{"level": "info"},
	}

	json1, err := json.Marshal(initResp)
	require.NoError(t, err)

	largeJSON, err := json.Marshal(largeResp)
	require.NoError(t, err)

	json3, err := json.Marshal(notification)
	require.NoError(t, err)

	lines := []string{
		string(json1) + "\n",
		string(largeJSON[:1000]),
		string(largeJSON[1000:3000]),
		string(largeJSON[3000:]) + "\n" + string(json3) + "\n",
	}

	reader := newMockChunkReader(lines...)
	messages := parseJSONLines(t, reader)

	require.Len(t, messages, 3)
	require.Equal(t, float64(1), messages[0]["id"])
	require.Equal(t, float64(2), messages[1]["id"])
	require.Equal(t, "notifications/message", messages[2]["method"])

	result, ok := messages[1]["result"].(map[string]any)
	require.True(t, ok)

	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)

	textBlock, ok := content[0].(map[string]any)
	require.True(t, ok)

	text, ok := textBlock["text"].(string)
	require.True(t, ok)
	require.Len(t, text, 5000)
}

// parseJSONLines is a helper that mimics the transport's JSON parsing logic.
func parseJSONLines(t *testing.T, reader io.Reader) []map[string]any {
	t.Helper()

	var messages []map[string]any

	scanner := bufio.NewScanner(reader)

	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg map[string]any

		if err := json.Unmarshal(line, &msg); err != nil {
			t.Fatalf("Failed to unmarshal JSON: %v, line: %s", err, string(line))
		}

		messages = append(messages, msg)
	}

	require.NoError(t, scanner.Err())

	return messages
}

// parseJSONLinesSkipEmpty is a helper that skips empty lines during parsing.
func parseJSONLinesSkipEmpty(t *testing.T, reader io.Reader) []map[string]any {
	t.Helper()

	var messages []map[string]any

	scanner := bufio.NewScanner(reader)

	buf := make([]byte, maxScanTokenSize)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg map[string]any

		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}

		messages = append(messages, msg)
	}

	require.NoError(t, scanner.Err())

	return messages
}
