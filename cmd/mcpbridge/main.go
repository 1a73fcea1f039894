package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpbridge "github.com/appsecco/mcpbridge"
)

const version = "0.1.0"

var (
	flagConfig        string
	flagProxy         string
	flagStartRelay    bool
	flagRelayPort     int
	flagNoUpstream    bool
	flagNoProxychains bool
	flagNoSSLBypass   bool
	flagNoAnalytics   bool
	flagVerbose       bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "mcpbridge",
		Short:   "Connect to stdio MCP servers and inspect their traffic over HTTP",
		Version: version,
		Long: `mcpbridge spawns a stdio MCP server from your configuration file, performs
the MCP handshake, and lets you browse and call its tools interactively.

With --start-relay the bridge also opens a local HTTP endpoint that mirrors
the stdio session, so an intercepting proxy such as Burp Suite can observe
and replay every request. Outbound HTTP is routed through the upstream
proxy, and the server process itself can be wrapped in proxychains so its
own traffic shows up in the proxy too.`,
		Example: `  mcpbridge --config mcp_config.json --start-relay
  mcpbridge -c servers.yaml --no-proxychains --no-ssl-bypass`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&flagConfig, "config", "c", "mcp_config.json", "MCP server definitions file (JSON or YAML)")
	flags.StringVarP(&flagProxy, "proxy", "p", "http://127.0.0.1:8080", "upstream intercepting proxy URL")
	flags.BoolVar(&flagStartRelay, "start-relay", false, "start the local HTTP relay for proxy inspection")
	flags.IntVar(&flagRelayPort, "relay-port", 3000, "port for the local HTTP relay")
	flags.BoolVar(&flagNoUpstream, "no-upstream", false, "send relay traffic directly instead of via the upstream proxy")
	flags.BoolVar(&flagNoProxychains, "no-proxychains", false, "spawn the server without proxychains wrapping")
	flags.BoolVar(&flagNoSSLBypass, "no-ssl-bypass", false, "keep TLS verification in the server's environment")
	flags.BoolVar(&flagNoAnalytics, "no-analytics", false, "disable anonymous usage analytics")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "log bridge internals to stderr")
	return root
}

func runBridge(cmd *cobra.Command) error {
	cfg, err := mcpbridge.LoadConfig(flagConfig)
	if err != nil {
		return err
	}
	if len(cfg.Servers()) == 0 {
		return fmt.Errorf("no MCP servers defined in %s", flagConfig)
	}

	opts := []mcpbridge.Option{
		mcpbridge.WithRelay(flagStartRelay),
		mcpbridge.WithRelayPort(flagRelayPort),
		mcpbridge.WithUpstreamProxy(flagProxy),
		mcpbridge.WithViaUpstream(!flagNoUpstream),
		mcpbridge.WithProxychains(!flagNoProxychains),
		mcpbridge.WithSSLBypass(!flagNoSSLBypass),
		mcpbridge.WithAnalytics(!flagNoAnalytics),
	}
	if flagVerbose {
		opts = append(opts, mcpbridge.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}

	client, err := mcpbridge.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("Close: "+err.Error()))
		}
	}()

	out := cmd.OutOrStdout()
	printBanner(out)
	printSettings(out, settings{
		ConfigPath:  flagConfig,
		ProxyURL:    flagProxy,
		ViaUpstream: !flagNoUpstream,
		Proxychains: !flagNoProxychains,
		SSLBypass:   !flagNoSSLBypass,
		StartRelay:  flagStartRelay,
		RelayPort:   flagRelayPort,
	})

	sess := newSession(client, cfg, cmd.InOrStdin(), out)
	return sess.run(cmd.Context())
}
