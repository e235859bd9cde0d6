package egm

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	base "github.com/qcr/abb-libegm/pkg/egm"
)

// Re-exported errors for convenience.
var (
	ErrParse                = base.ErrParse
	ErrSchemaMismatch       = base.ErrSchemaMismatch
	ErrUnsupportedMode      = base.ErrUnsupportedMode
	ErrSessionTimeout       = base.ErrSessionTimeout
	ErrInvalidConfiguration = base.ErrInvalidConfiguration
	ErrChannelSinkClosed    = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/qcr/abb-libegm directly.
type (
	Config          = base.Config
	ServerConfig    = base.ServerConfig
	RobotConfig     = base.RobotConfig
	DemoConfig      = base.DemoConfig
	SessionConfig   = base.SessionConfig
	LoggingConfig   = base.LoggingConfig
	TimescaleConfig = base.TimescaleConfig
	MetricsConfig   = base.MetricsConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Interface       = base.Interface
	Option          = base.Option
	Simulator       = base.Simulator
	Configuration   = base.Configuration
	SessionData     = base.SessionData
	SessionPolicy   = base.SessionPolicy
	Input           = base.Input
	Output          = base.Output
	CycleRecord     = base.CycleRecord
	CycleBatchFunc  = base.CycleBatchFunc
	Pose            = base.Pose
	Cartesian       = base.Cartesian
	Quaternion      = base.Quaternion
	Codec           = base.Codec
	Planner         = base.Planner
	CycleSink       = base.CycleSink
	CycleQueue      = base.CycleQueue
	Observability   = base.Observability
	Field           = base.Field
)

const (
	AxesNone  = base.AxesNone
	AxesSix   = base.AxesSix
	AxesSeven = base.AxesSeven

	ModeJoint     = base.ModeJoint
	ModeCartesian = base.ModeCartesian

	FallbackEchoPrevious = base.FallbackEchoPrevious
	FallbackNone         = base.FallbackNone
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ConfigFromEnv() (*Config, error) {
	return base.ConfigFromEnv()
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...Option) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInCodec(c Codec) StreamInOption {
	return base.StreamInCodec(c)
}

func StreamInPlanner(p Planner) StreamInOption {
	return base.StreamInPlanner(p)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutQueue(q CycleQueue) StreamOutOption {
	return base.StreamOutQueue(q)
}

func StreamOutSink(s CycleSink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutCallback(name string, fn CycleBatchFunc) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Interface and options.
func NewInterface(cfg *Config, opts ...Option) (*Interface, error) {
	return base.NewInterface(cfg, opts...)
}

func WithCodec(c Codec) Option {
	return base.WithCodec(c)
}

func WithPlanner(p Planner) Option {
	return base.WithPlanner(p)
}

func WithSink(s CycleSink) Option {
	return base.WithSink(s)
}

func WithQueue(q CycleQueue) Option {
	return base.WithQueue(q)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithLogger(l *slog.Logger) Option {
	return base.WithLogger(l)
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return base.WithRegisterer(reg)
}

func WithSessionPolicy(p SessionPolicy) Option {
	return base.WithSessionPolicy(p)
}

func WithoutServer() Option {
	return base.WithoutServer()
}

// Sink adapters.
func NewCallbackSink(name string, fn CycleBatchFunc) CycleSink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (CycleSink, <-chan []CycleRecord, func()) {
	return base.NewChannelSink(name, buffer)
}

// Journal replay and simulation.
func ReplayJournal(ctx context.Context, dir string, batchSize int, s CycleSink) (int, error) {
	return base.ReplayJournal(ctx, dir, batchSize, s)
}

func DialSimulator(addr string) (*Simulator, error) {
	return base.DialSimulator(addr)
}
