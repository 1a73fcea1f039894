package subprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/appsecco/mcpbridge/internal/config"
)

// lastValue returns the value of the last occurrence of key in the
// environment list, which is the one the child process sees.
func lastValue(env []string, key string) (string, bool) {
	prefix := key + "="

	var (
		value string
		found bool
	)

	for _, entry := range env {
		if strings.HasPrefix(entry, prefix) {
			value = strings.TrimPrefix(entry, prefix)
			found = true
		}
	}

	return value, found
}

// TestBuildEnvironment_InheritsBase tests that the parent environment is passed through.
func TestBuildEnvironment_InheritsBase(t *testing.T) {
	t.Setenv("MCPBRIDGE_TEST_MARKER", "yes")

	env := BuildEnvironment(config.ServerConfig{}, false)

	value, found := lastValue(env, "MCPBRIDGE_TEST_MARKER")
	require.True(t, found)
	require.Equal(t, "yes", value)
}

// TestBuildEnvironment_ConfigOverridesBase tests that configured variables
// win over inherited ones.
func TestBuildEnvironment_ConfigOverridesBase(t *testing.T) {
	t.Setenv("MCPBRIDGE_TEST_MARKER", "old")

	spec := config.ServerConfig{Env: map[string]string{"MCPBRIDGE_TEST_MARKER": "new"}}
	env := BuildEnvironment(spec, false)

	value, found := lastValue(env, "MCPBRIDGE_TEST_MARKER")
	require.True(t, found)
	require.Equal(t, "new", value)
}

// TestBuildEnvironment_SSLBypass tests injection of the TLS bypass variables.
func TestBuildEnvironment_SSLBypass(t *testing.T) {
	env := BuildEnvironment(config.ServerConfig{}, true)

	for key, want := range map[string]string{
		"NODE_TLS_REJECT_UNAUTHORIZED": "0",
		"PYTHONHTTPSVERIFY":            "0",
		"REQUESTS_CA_BUNDLE":           "",
		"SSL_CERT_FILE":                "",
		"CURL_CA_BUNDLE":               "",
	} {
		value, found := lastValue(env, key)
		require.True(t, found, "missing %s", key)
		require.Equal(t, want, value, "wrong value for %s", key)
	}
}

// TestBuildEnvironment_NoBypassWhenDisabled tests that the TLS variables are
// not injected when the bypass is off.
func TestBuildEnvironment_NoBypassWhenDisabled(t *testing.T) {
	// Clear any inherited value so the assertion is about injection only.
	t.Setenv("NODE_TLS_REJECT_UNAUTHORIZED", "")

	env := BuildEnvironment(config.ServerConfig{}, false)

	value, _ := lastValue(env, "NODE_TLS_REJECT_UNAUTHORIZED")
	require.NotEqual(t, "0", value)
}

// TestBuildEnvironment_BypassWinsOverConfig tests that the bypass overrides
// even explicitly configured certificate settings.
func TestBuildEnvironment_BypassWinsOverConfig(t *testing.T) {
	spec := config.ServerConfig{Env: map[string]string{"SSL_CERT_FILE": "/custom/ca.pem"}}
	env := BuildEnvironment(spec, true)

	value, found := lastValue(env, "SSL_CERT_FILE")
	require.True(t, found)
	require.Equal(t, "", value)
}
