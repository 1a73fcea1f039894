package subprocess

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/appsecco/mcpbridge/internal/config"
)

// proxychainsConf is resolved relative to the working directory, which is
// where proxychains itself looks first.
const proxychainsConf = "proxychains.conf"

// sslBypassEnv disables TLS verification in the runtimes MCP servers are
// commonly written in, so an intercepting proxy can present its own
// certificate. Empty values clear any CA bundle overrides.
var sslBypassEnv = map[string]string{
	"NODE_TLS_REJECT_UNAUTHORIZED": "0",
	"PYTHONHTTPSVERIFY":            "0",
	"REQUESTS_CA_BUNDLE":           "",
	"SSL_CERT_FILE":                "",
	"CURL_CA_BUNDLE":               "",
}

// BuildEnvironment constructs the environment for a server process.
// Later entries win on duplicate keys, so configured variables override the
// inherited environment and the TLS bypass overrides both.
func BuildEnvironment(spec config.ServerConfig, sslBypass bool) []string {
	// Start with current environment
	env := os.Environ()

	// Add or override with configured server variables
	for key, value := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	if sslBypass {
		for key, value := range sslBypassEnv {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
	}

	return env
}

// wrapProxychains rewrites a launch command to run under proxychains so the
// server's own outbound TCP is forced through the intercepting proxy.
//
// The proxychains binary must be on PATH and proxychains.conf must exist in
// the working directory. A config that never mentions port 8080 is accepted
// with a warning, since the proxy it points at may simply listen elsewhere.
func wrapProxychains(log *slog.Logger, command string, args []string) (string, []string, error) {
	if _, err := exec.LookPath("proxychains"); err != nil {
		return "", nil, fmt.Errorf("proxychains not found in PATH: %w", err)
	}

	data, err := os.ReadFile(proxychainsConf)
	if err != nil {
		return "", nil, fmt.Errorf("proxychains config not readable: %w", err)
	}
	if !strings.Contains(string(data), "8080") {
		log.Warn("proxychains.conf does not mention port 8080, server traffic may bypass the intercepting proxy",
			"config", proxychainsConf)
	}

	return "proxychains", append([]string{command}, args...), nil
}
