package mcpbridge

import "github.com/appsecco/mcpbridge/internal/config"

// Transport carries framed messages to and from a server. Write sends one
// message and Lines yields newline-delimited replies until the server goes
// away. The default transport spawns the configured command as a subprocess;
// supply your own with WithTransport to talk to an already-running server
// or to fake one in tests.
type Transport = config.Transport
