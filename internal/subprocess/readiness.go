package subprocess

import "strings"

// Mechanism identifies how a server is launched. Package-runner launches
// produce installer chatter on top of the server's own output, so they get
// an extended success vocabulary.
type Mechanism string

const (
	// MechanismGeneric covers directly launched server binaries.
	MechanismGeneric Mechanism = "generic"
	// MechanismNPX covers npx-style package-runner launches.
	MechanismNPX Mechanism = "npx"
)

// Verdict is the classification result for a single startup output line.
type Verdict int

const (
	// VerdictNone means the line matched neither table; keep polling.
	VerdictNone Verdict = iota
	// VerdictReady means a success indicator matched.
	VerdictReady
	// VerdictFailed means an error indicator matched.
	VerdictFailed
)

func (v Verdict) String() string {
	switch v {
	case VerdictReady:
		return "ready"
	case VerdictFailed:
		return "failed"
	default:
		return "none"
	}
}

// Success indicators for package-runner launches. Includes installer
// vocabulary (npm, node_modules, package installed) on top of the generic
// server phrases.
var npxReadyIndicators = []string{
	"ready", "started", "listening", "server running", "server is running",
	"server is ready", "server started", "mcp server", "initialized",
	"connected", "package installed", "npm", "node_modules", "successfully",
	"running on", "ready to accept connections", "mcp server is running",
	"mcp server is ready", "installed",
}

// Success indicators for directly launched servers.
var genericReadyIndicators = []string{
	"ready", "started", "listening", "server running", "mcp server",
	"initialized", "connected", "installed",
}

// Error indicators, shared across mechanisms.
var errorIndicators = []string{
	"error", "failed", "exception", "crash", "exit", "not found",
	"command failed", "npm error",
}

// DetectMechanism picks the keyword table set for a launch command.
// A server counts as package-runner launched when the command itself is npx
// or npx appears anywhere in the argument list.
func DetectMechanism(command string, args []string) Mechanism {
	if command == "npx" || strings.Contains(strings.Join(args, " "), "npx") {
		return MechanismNPX
	}

	return MechanismGeneric
}

// Classify maps one startup output line to a readiness verdict.
//
// Matching is case-insensitive substring containment against the ordered
// keyword tables. The success table is consulted before the error table, so
// a line like "server started despite npm error" counts as ready.
func Classify(line string, mechanism Mechanism) Verdict {
	lower := strings.ToLower(line)

	ready := genericReadyIndicators
	if mechanism == MechanismNPX {
		ready = npxReadyIndicators
	}

	for _, indicator := range ready {
		if strings.Contains(lower, indicator) {
			return VerdictReady
		}
	}

	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return VerdictFailed
		}
	}

	return VerdictNone
}
