// Package analytics reports anonymous usage events to PostHog.
//
// Collection is opt-out: the --no-analytics flag, WithAnalytics(false), or
// the MCPBRIDGE_ANALYTICS_DISABLED environment variable each turn it off.
// No tool arguments, server commands, or environment values are ever sent;
// the distinct id is a hash of coarse machine traits.
package analytics
