package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("GATEWAY_SCHEDULER", "batch")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "batch", cfg.Scheduler)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, 0, cfg.DelayMs)
	assert.Equal(t, DefaultNumServer, cfg.NumServer)
	assert.Equal(t, DefaultRendezvousDir, cfg.RendezvousDir)
	assert.Equal(t, DefaultScriptsDir, cfg.ScriptsDir)
	assert.Equal(t, DefaultPollIntervalMs, cfg.PollIntervalMs)
	assert.Equal(t, "umbridge-gateway", cfg.Observability.ServiceName)
}

func TestLoad_WithEnv(t *testing.T) {
	os.Clearenv()
	os.Setenv("GATEWAY_SCHEDULER", "queue")
	os.Setenv("GATEWAY_PORT", "9090")
	os.Setenv("GATEWAY_DELAY_MS", "250")
	os.Setenv("GATEWAY_NUM_SERVER", "4")
	os.Setenv("GATEWAY_OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "queue", cfg.Scheduler)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250, cfg.DelayMs)
	assert.Equal(t, 4, cfg.NumServer)
	assert.True(t, cfg.Observability.OTelEnabled)
}

func TestLoad_PortEnvOverridesGatewayPort(t *testing.T) {
	os.Clearenv()
	os.Setenv("GATEWAY_SCHEDULER", "batch")
	os.Setenv("GATEWAY_PORT", "9090")
	os.Setenv("PORT", "5000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
}

func TestLoad_MissingScheduler(t *testing.T) {
	os.Clearenv()

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "GATEWAY_SCHEDULER is required")
}

func TestLoad_UnknownScheduler(t *testing.T) {
	os.Clearenv()
	os.Setenv("GATEWAY_SCHEDULER", "mysql")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown GATEWAY_SCHEDULER")
}
