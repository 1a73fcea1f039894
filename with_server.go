package mcpbridge

import (
	"context"
	"fmt"
)

// WithServer manages client lifecycle around a single server connection.
//
// This helper creates a client, connects to the named server, executes the
// callback function, and ensures proper cleanup via Close() when done.
//
// The callback receives a fully connected Client that is ready for use.
// If the callback returns an error, it is returned to the caller.
// If Close() fails, a warning is logged but does not override the
// callback's error.
//
// Example usage:
//
//	err := mcpbridge.WithServer(ctx, cfg, "filesystem", func(c mcpbridge.Client) error {
//	    tools, err := c.ListTools(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    for _, tool := range tools {
//	        fmt.Println(tool.Name)
//	    }
//	    return nil
//	},
//	    mcpbridge.WithLogger(log),
//	    mcpbridge.WithRelay(true),
//	)
func WithServer(ctx context.Context, cfg *Config, server string, fn func(Client) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	client, err := New(cfg, opts...)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close client", "error", closeErr)
		}
	}()

	if err := client.Connect(ctx, server); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", server, err)
	}

	return fn(client)
}
