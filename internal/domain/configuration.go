package domain

import (
	"fmt"
	"time"
)

// Axes is the robot's joint layout.
type Axes int

const (
	// AxesNone is a robot without own joints (only external axes are used).
	AxesNone Axes = 0
	// AxesSix is a regular six-axis robot.
	AxesSix Axes = 6
	// AxesSeven is a seven-axis robot (e.g. YuMi arms); the controller streams the
	// seventh joint as the first external joint.
	AxesSeven Axes = 7
)

// Mode selects which body the reply carries.
type Mode string

const (
	ModeJoint     Mode = "joint"
	ModeCartesian Mode = "cartesian"
)

// FallbackPolicy decides the reply when the requested body cannot be built.
type FallbackPolicy string

const (
	// FallbackEchoPrevious re-sends the previous command (fresh header).
	FallbackEchoPrevious FallbackPolicy = "echo_previous"
	// FallbackNone sends nothing and leaves the sequence number untouched.
	FallbackNone FallbackPolicy = "none"
)

// DefaultNominalCycleTime is the EGM default cycle used until a sample time is measured.
const DefaultNominalCycleTime = 4 * time.Millisecond

// DemoConfig drives the built-in reference trajectory.
type DemoConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	TargetJoints []float64     `yaml:"target_joints" json:"target_joints,omitempty"`
	TargetPose   Pose          `yaml:"target_pose" json:"target_pose"`
	Duration     time.Duration `yaml:"duration" json:"duration"`
}

// LoggingOptions bounds per-session cycle logging.
type LoggingOptions struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	MaxDuration time.Duration `yaml:"max_duration" json:"max_duration"`
}

// Configuration is the interface's runtime configuration. Updates only take effect at
// the next session boundary.
type Configuration struct {
	Axes               Axes           `yaml:"axes" json:"axes"`
	Mode               Mode           `yaml:"mode" json:"mode"`
	UseVelocityOutputs bool           `yaml:"use_velocity_outputs" json:"use_velocity_outputs"`
	Demo               DemoConfig     `yaml:"demo" json:"demo"`
	NominalCycleTime   time.Duration  `yaml:"nominal_cycle_time" json:"nominal_cycle_time"`
	Fallback           FallbackPolicy `yaml:"fallback" json:"fallback"`
	Logging            LoggingOptions `yaml:"logging" json:"logging"`
}

// DefaultConfiguration returns a six-axis joint-mode configuration with demo outputs off.
func DefaultConfiguration() Configuration {
	return Configuration{
		Axes:             AxesSix,
		Mode:             ModeJoint,
		NominalCycleTime: DefaultNominalCycleTime,
		Fallback:         FallbackEchoPrevious,
		Demo: DemoConfig{
			Duration:   5 * time.Second,
			TargetPose: Pose{Orientation: IdentityQuaternion},
		},
		Logging: LoggingOptions{MaxDuration: time.Minute},
	}
}

// ApplyDefaults fills zero values.
func (c *Configuration) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeJoint
	}
	if c.NominalCycleTime == 0 {
		c.NominalCycleTime = DefaultNominalCycleTime
	}
	if c.Fallback == "" {
		c.Fallback = FallbackEchoPrevious
	}
	if c.Demo.Duration == 0 {
		c.Demo.Duration = 5 * time.Second
	}
	if c.Demo.TargetPose.Orientation.IsZero() {
		c.Demo.TargetPose.Orientation = IdentityQuaternion
	}
	if c.Logging.MaxDuration == 0 {
		c.Logging.MaxDuration = time.Minute
	}
}

// Validate checks the configuration for internal consistency.
func (c Configuration) Validate() error {
	switch c.Axes {
	case AxesNone, AxesSix, AxesSeven:
	default:
		return invalidConfig("axes must be 0, 6 or 7, got %d", c.Axes)
	}
	switch c.Mode {
	case ModeJoint:
		if c.Axes == AxesNone {
			return invalidConfig("joint mode requires a robot axis layout")
		}
	case ModeCartesian:
	default:
		return invalidConfig("unknown mode %q", c.Mode)
	}
	switch c.Fallback {
	case FallbackEchoPrevious, FallbackNone:
	default:
		return invalidConfig("unknown fallback policy %q", c.Fallback)
	}
	if c.NominalCycleTime <= 0 {
		return invalidConfig("nominal cycle time must be > 0")
	}
	if c.Demo.Enabled {
		if c.Demo.Duration <= 0 {
			return invalidConfig("demo duration must be > 0")
		}
		if n := len(c.Demo.TargetJoints); n > 0 && n != int(c.Axes) {
			return invalidConfig("demo target has %d joints, layout has %d", n, c.Axes)
		}
		if c.Demo.TargetPose.Orientation.Norm() == 0 {
			return invalidConfig("demo target orientation is degenerate")
		}
	}
	if c.Logging.Enabled && c.Logging.MaxDuration < 0 {
		return invalidConfig("logging max duration must be >= 0")
	}
	return nil
}

// Clone returns a deep copy.
func (c Configuration) Clone() Configuration {
	c.Demo.TargetJoints = cloneFloats(c.Demo.TargetJoints)
	return c
}

func invalidConfig(format string, args ...any) error {
	return &Error{Op: "configuration", Kind: ErrInvalidConfiguration, Err: fmt.Errorf(format, args...)}
}
