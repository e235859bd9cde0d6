package egm

import (
	"context"
	"fmt"
)

// Flow is a convenience builder that lets callers say Conf → StreamIN → StreamOUT
// without touching the underlying wiring.
type Flow struct {
	cfg  *Config
	opts []Option
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures the controller-facing side: codec, planner, observability.
type StreamInOption func(*Flow)

// StreamOutOption configures the logging side: queue and sinks.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw Option values to the builder.
func (f *Flow) Options(opts ...Option) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// StreamIN records controller-side overrides.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records logging-side overrides and builds an Interface ready to run.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*Interface, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewInterface(f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + Interface.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	e, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return e.Run(ctx)
}

// WithFlowOptions appends Option values during Conf.
func WithFlowOptions(opts ...Option) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInCodec replaces the protobuf wire codec.
func StreamInCodec(c Codec) StreamInOption {
	return func(f *Flow) {
		if f != nil && c != nil {
			f.appendOptions(WithCodec(c))
		}
	}
}

// StreamInPlanner installs a reference generator in place of the demo trajectory.
func StreamInPlanner(p Planner) StreamInOption {
	return func(f *Flow) {
		if f != nil && p != nil {
			f.appendOptions(WithPlanner(p))
		}
	}
}

// StreamInObservability overrides the default Prometheus-based observability stack.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutQueue swaps the in-memory cycle queue.
func StreamOutQueue(q CycleQueue) StreamOutOption {
	return func(f *Flow) {
		if f != nil && q != nil {
			f.appendOptions(WithQueue(q))
		}
	}
}

// StreamOutSink adds a cycle sink and turns logging on.
func StreamOutSink(s CycleSink) StreamOutOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.cfg.Logging.Enabled = true
			f.appendOptions(WithSink(s))
		}
	}
}

// StreamOutCallback adds a sink built from a callback function and turns logging on.
func StreamOutCallback(name string, fn CycleBatchFunc) StreamOutOption {
	return func(f *Flow) {
		if f != nil {
			f.cfg.Logging.Enabled = true
			f.appendOptions(WithSink(NewCallbackSink(name, fn)))
		}
	}
}

func (f *Flow) appendOptions(opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
