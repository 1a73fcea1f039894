package mcpbridge

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsecco/mcpbridge/internal/config"
)

// TestApplyOptions_Defaults tests the resolved defaults when no options
// are given.
func TestApplyOptions_Defaults(t *testing.T) {
	opts := applyOptions(nil)
	require.NotNil(t, opts)

	assert.Nil(t, opts.Logger)
	assert.False(t, opts.RelayEnabled)
	assert.Equal(t, config.DefaultRelayPort, opts.RelayPort)
	assert.Equal(t, config.DefaultUpstreamProxy, opts.UpstreamProxy)
	assert.True(t, opts.ViaUpstream)
	assert.True(t, opts.UseProxychains)
	assert.True(t, opts.SSLBypass)
	assert.True(t, opts.AnalyticsEnabled)
	assert.Equal(t, config.DefaultClientName, opts.ClientName)
	assert.Equal(t, config.DefaultClientVersion, opts.ClientVersion)
	assert.Equal(t, config.DefaultReadinessTimeout, opts.ReadinessTimeout)
	assert.Equal(t, config.DefaultCallTimeout, opts.CallTimeout)
	assert.Equal(t, config.DefaultNotifyTimeout, opts.NotifyTimeout)
	assert.Equal(t, config.DefaultTerminateGrace, opts.TerminateGrace)
	assert.Nil(t, opts.Transport)
}

// TestApplyOptions_Overrides tests that every option sets its field.
func TestApplyOptions_Overrides(t *testing.T) {
	logger := slog.Default()
	transport := newFakeServer()

	opts := applyOptions([]Option{
		WithLogger(logger),
		WithClientInfo("pentest-client", "9.9.9"),
		WithRelay(true),
		WithRelayPort(3117),
		WithUpstreamProxy("http://127.0.0.1:9090"),
		WithViaUpstream(false),
		WithProxychains(false),
		WithSSLBypass(false),
		WithReadinessTimeout(7 * time.Second),
		WithCallTimeout(11 * time.Second),
		WithNotifyTimeout(2 * time.Second),
		WithTerminateGrace(3 * time.Second),
		WithAnalytics(false),
		WithTransport(transport),
	})

	assert.Same(t, logger, opts.Logger)
	assert.Equal(t, "pentest-client", opts.ClientName)
	assert.Equal(t, "9.9.9", opts.ClientVersion)
	assert.True(t, opts.RelayEnabled)
	assert.Equal(t, 3117, opts.RelayPort)
	assert.Equal(t, "http://127.0.0.1:9090", opts.UpstreamProxy)
	assert.False(t, opts.ViaUpstream)
	assert.False(t, opts.UseProxychains)
	assert.False(t, opts.SSLBypass)
	assert.Equal(t, 7*time.Second, opts.ReadinessTimeout)
	assert.Equal(t, 11*time.Second, opts.CallTimeout)
	assert.Equal(t, 2*time.Second, opts.NotifyTimeout)
	assert.Equal(t, 3*time.Second, opts.TerminateGrace)
	assert.False(t, opts.AnalyticsEnabled)
	assert.Same(t, transport, opts.Transport)
}

// TestNopLogger tests that the no-op logger is safe to use.
func TestNopLogger(t *testing.T) {
	log := NopLogger()
	require.NotNil(t, log)

	log.Info("discarded", "key", "value")
	log.Error("also discarded")
}
