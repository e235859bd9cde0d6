package egm

import (
	"github.com/qcr/abb-libegm/internal/adapters/udp"
	"github.com/qcr/abb-libegm/internal/app/config"
)

// Config re-exports the root configuration struct so embedding programs can build or
// modify it in code.
type Config = config.Config

type (
	// ServerConfig is the UDP bind address.
	ServerConfig = udp.Config
	// RobotConfig is the interface configuration surface (axes, mode, demo, ...).
	RobotConfig = config.RobotConfig
	// DemoConfig drives the built-in reference trajectory.
	DemoConfig = config.DemoConfig
	// SessionConfig holds the session boundary policy.
	SessionConfig = config.SessionConfig
	// LoggingConfig configures per-cycle logging and its sinks.
	LoggingConfig = config.LoggingConfig
	// TimescaleConfig configures the TimescaleDB sink.
	TimescaleConfig = config.TimescaleConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
)

// LoadConfig loads YAML from disk and applies EGM_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ConfigFromEnv builds a configuration from EGM_* environment variables alone.
func ConfigFromEnv() (*Config, error) {
	return config.FromEnv()
}

// DefaultConfig is a six-axis joint-mode endpoint on port 6510 with logging off.
func DefaultConfig() *Config {
	return config.Default()
}
