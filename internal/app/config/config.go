package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/qcr/abb-libegm/internal/adapters/udp"
	"github.com/qcr/abb-libegm/internal/app/core"
	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

// EnvPrefix prefixes every environment override, e.g. EGM_SERVER_PORT.
const EnvPrefix = "EGM_"

type Config struct {
	Server  udp.Config    `yaml:"server" envPrefix:"SERVER_"`
	Robot   RobotConfig   `yaml:"robot" envPrefix:"ROBOT_"`
	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOGGING_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// RobotConfig is the interface configuration surface. Axes is a pointer because 0
// (no robot joints) is a valid layout; it defaults to six.
type RobotConfig struct {
	Axes               *int          `yaml:"axes" env:"AXES"`
	Mode               string        `yaml:"mode" env:"MODE"`
	UseVelocityOutputs bool          `yaml:"use_velocity_outputs" env:"USE_VELOCITY_OUTPUTS"`
	NominalCycleTime   time.Duration `yaml:"nominal_cycle_time" env:"NOMINAL_CYCLE_TIME"`
	Fallback           string        `yaml:"fallback" env:"FALLBACK"`
	Demo               DemoConfig    `yaml:"demo" envPrefix:"DEMO_"`
}

type DemoConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	TargetJoints []float64     `yaml:"target_joints" env:"TARGET_JOINTS"`
	TargetPose   domain.Pose   `yaml:"target_pose"`
	Duration     time.Duration `yaml:"duration" env:"DURATION"`
}

// SessionConfig holds the boundary policy. The restart flags default to true, so
// they are pointers to tell "unset" from "false".
type SessionConfig struct {
	LivenessWindow               time.Duration `yaml:"liveness_window" env:"LIVENESS_WINDOW"`
	RestartOnSequenceReset       *bool         `yaml:"restart_on_sequence_reset" env:"RESTART_ON_SEQUENCE_RESET"`
	RestartOnTimestampRegression *bool         `yaml:"restart_on_timestamp_regression" env:"RESTART_ON_TIMESTAMP_REGRESSION"`
	DropDuplicates               *bool         `yaml:"drop_duplicates" env:"DROP_DUPLICATES"`
}

type LoggingConfig struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED"`
	MaxDuration time.Duration `yaml:"max_duration" env:"MAX_DURATION"`

	MaxQueueLen  int           `yaml:"max_queue_len" env:"MAX_QUEUE_LEN"`
	MaxBatchSize int           `yaml:"max_batch_size" env:"MAX_BATCH_SIZE"`
	IdleSleep    time.Duration `yaml:"idle_sleep" env:"IDLE_SLEEP"`
	OnQueueFull  string        `yaml:"on_queue_full" env:"ON_QUEUE_FULL"`

	CSVPath    string          `yaml:"csv_path" env:"CSV_PATH"`
	JournalDir string          `yaml:"journal_dir" env:"JOURNAL_DIR"`
	Timescale  TimescaleConfig `yaml:"timescale" envPrefix:"TIMESCALE_"`
}

type TimescaleConfig struct {
	ConnString   string `yaml:"conn_string" env:"CONN_STRING"`
	Table        string `yaml:"table" env:"TABLE"`
	EnsureSchema bool   `yaml:"ensure_schema" env:"ENSURE_SCHEMA"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Load reads YAML from path, applies EGM_* environment overrides, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return finish(&cfg)
}

// FromEnv builds a configuration from defaults and EGM_* variables only.
func FromEnv() (*Config, error) {
	return finish(&Config{})
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = udp.DefaultPort
	}
	if c.Robot.Axes == nil {
		axes := int(domain.AxesSix)
		c.Robot.Axes = &axes
	}
	if c.Session.LivenessWindow == 0 {
		c.Session.LivenessWindow = core.DefaultLivenessWindow
	}
	if c.Session.RestartOnSequenceReset == nil {
		c.Session.RestartOnSequenceReset = boolPtr(true)
	}
	if c.Session.RestartOnTimestampRegression == nil {
		c.Session.RestartOnTimestampRegression = boolPtr(true)
	}
	if c.Session.DropDuplicates == nil {
		c.Session.DropDuplicates = boolPtr(true)
	}
	if c.Logging.MaxQueueLen == 0 {
		c.Logging.MaxQueueLen = 10_000
	}
	if c.Logging.MaxBatchSize == 0 {
		c.Logging.MaxBatchSize = 250
	}
	if c.Logging.IdleSleep == 0 {
		c.Logging.IdleSleep = 10 * time.Millisecond
	}
	if c.Logging.OnQueueFull == "" {
		c.Logging.OnQueueFull = "drop_newest"
	}
	if c.Logging.Timescale.Table == "" {
		c.Logging.Timescale.Table = "egm_cycles"
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if err := c.Interface().Validate(); err != nil {
		return fmt.Errorf("robot config: %w", err)
	}
	if c.Session.LivenessWindow < 0 {
		return fmt.Errorf("session.liveness_window must be >= 0")
	}
	switch c.Logging.OnQueueFull {
	case "drop_newest", "drop_oldest":
	default:
		return fmt.Errorf("logging.on_queue_full must be drop_newest or drop_oldest, got %q", c.Logging.OnQueueFull)
	}
	if c.Logging.MaxQueueLen < 0 || c.Logging.MaxBatchSize < 0 {
		return fmt.Errorf("logging queue sizes must be >= 0")
	}
	return nil
}

// Interface converts the robot and logging sections into the interface configuration,
// with defaults applied.
func (c *Config) Interface() domain.Configuration {
	cfg := domain.Configuration{
		Axes:               domain.AxesSix,
		Mode:               domain.Mode(c.Robot.Mode),
		UseVelocityOutputs: c.Robot.UseVelocityOutputs,
		NominalCycleTime:   c.Robot.NominalCycleTime,
		Fallback:           domain.FallbackPolicy(c.Robot.Fallback),
		Demo: domain.DemoConfig{
			Enabled:      c.Robot.Demo.Enabled,
			TargetJoints: append([]float64(nil), c.Robot.Demo.TargetJoints...),
			TargetPose:   c.Robot.Demo.TargetPose,
			Duration:     c.Robot.Demo.Duration,
		},
		Logging: domain.LoggingOptions{
			Enabled:     c.Logging.Enabled,
			MaxDuration: c.Logging.MaxDuration,
		},
	}
	if c.Robot.Axes != nil {
		cfg.Axes = domain.Axes(*c.Robot.Axes)
	}
	cfg.ApplyDefaults()
	return cfg
}

// SessionPolicy converts the session section.
func (c *Config) SessionPolicy() core.SessionPolicy {
	p := core.DefaultSessionPolicy()
	if c.Session.LivenessWindow > 0 {
		p.LivenessWindow = c.Session.LivenessWindow
	}
	if c.Session.RestartOnSequenceReset != nil {
		p.RestartOnSequenceReset = *c.Session.RestartOnSequenceReset
	}
	if c.Session.RestartOnTimestampRegression != nil {
		p.RestartOnTimestampRegression = *c.Session.RestartOnTimestampRegression
	}
	if c.Session.DropDuplicates != nil {
		p.DropDuplicates = *c.Session.DropDuplicates
	}
	return p
}

// LogPolicy converts the queue part of the logging section.
func (c *Config) LogPolicy() ports.LogPolicy {
	return ports.LogPolicy{
		MaxQueueLen:  c.Logging.MaxQueueLen,
		MaxBatchSize: c.Logging.MaxBatchSize,
		IdleSleep:    c.Logging.IdleSleep,
		OnQueueFull:  c.Logging.OnQueueFull,
	}
}

func boolPtr(v bool) *bool { return &v }
