package config

import (
	"fmt"
	"time"

	"github.com/rezkam/umbridge-gateway/internal/env"
	"github.com/rezkam/umbridge-gateway/internal/joberr"
)

// Default values applied by applyDefaults. env.Load leaves unset fields at
// their zero value; the gateway's own defaults are applied afterward.
const (
	DefaultPort             = "4242"
	DefaultDelayMs          = 0
	DefaultNumServer        = 1
	DefaultRendezvousDir    = "./urls"
	DefaultScriptsDir       = "./scripts"
	DefaultPollIntervalMs   = 500
	DefaultSubJobsDir       = "./sub-jobs"
	DefaultShutdownTimeout  = 10 * time.Second
	SchedulerBatchArray     = "batch"
	SchedulerTaskQueue      = "queue"
)

// GatewayConfig holds all configuration for the gateway binary.
type GatewayConfig struct {
	// Scheduler selects the batch scheduling backend: "batch" (SLURM-style
	// BatchArray) or "queue" (HyperQueue-style TaskQueue). Mandatory; there
	// is no sane default because the two backends submit jobs differently.
	Scheduler string `env:"GATEWAY_SCHEDULER"`

	// Port is the gateway's own listen port. PORT overrides it for
	// compatibility with the original getenv("PORT") convention.
	Port string `env:"GATEWAY_PORT"`

	// DelayMs paces submissions: the submitter sleeps this many
	// milliseconds before every submission after the first, while holding
	// its pacing lock.
	DelayMs int `env:"GATEWAY_DELAY_MS"`

	// NumServer applies to the BatchArray scheduler only; the TaskQueue
	// variant sizes its allocation queue from its own script instead. See
	// DESIGN.md for why this value is accepted and defaulted but has no
	// further effect on submission.
	NumServer int `env:"GATEWAY_NUM_SERVER"`

	RendezvousDir    string        `env:"GATEWAY_RENDEZVOUS_DIR"`
	ScriptsDir       string        `env:"GATEWAY_SCRIPTS_DIR"`
	SubJobsDir       string        `env:"GATEWAY_SUBJOBS_DIR"`
	PollIntervalMs   int           `env:"GATEWAY_POLL_INTERVAL_MS"`
	ShutdownTimeout  time.Duration `env:"GATEWAY_SHUTDOWN_TIMEOUT"`

	Observability ObservabilityConfig
}

// ObservabilityConfig holds OpenTelemetry bootstrap configuration.
type ObservabilityConfig struct {
	OTelEnabled bool   `env:"GATEWAY_OTEL_ENABLED"`
	ServiceName string `env:"OTEL_SERVICE_NAME"`
}

// Load loads and validates gateway configuration from the environment,
// then applies defaults for anything left unset.
func Load() (*GatewayConfig, error) {
	cfg := &GatewayConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load gateway config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *GatewayConfig) applyDefaults() {
	if port, ok := GetEnv[string]("PORT"); ok {
		c.Port = port
	}
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.NumServer <= 0 {
		c.NumServer = DefaultNumServer
	}
	if c.RendezvousDir == "" {
		c.RendezvousDir = DefaultRendezvousDir
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = DefaultScriptsDir
	}
	if c.SubJobsDir == "" {
		c.SubJobsDir = DefaultSubJobsDir
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = DefaultPollIntervalMs
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "umbridge-gateway"
	}
}

func (c *GatewayConfig) validate() error {
	switch c.Scheduler {
	case SchedulerBatchArray, SchedulerTaskQueue:
	case "":
		return joberr.ConfigError{Reason: fmt.Sprintf("GATEWAY_SCHEDULER is required (must be %q or %q)", SchedulerBatchArray, SchedulerTaskQueue)}
	default:
		return joberr.ConfigError{Reason: fmt.Sprintf("unknown GATEWAY_SCHEDULER %q (must be %q or %q)", c.Scheduler, SchedulerBatchArray, SchedulerTaskQueue)}
	}
	return nil
}
