// Package output builds the sequenced EgmSensor reply for each cycle.
package output

import (
	"errors"
	"fmt"

	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

// StartSequence is the sequence number of the first reply of a session.
const StartSequence uint32 = 0

// Inputs is the view of the input history the output side needs.
type Inputs interface {
	Initial() domain.Input
	Current() domain.Input
	IsFirstMessage() bool
}

// Container holds the output history of one interface. It is owned by the
// orchestrator and must not be used concurrently.
type Container struct {
	codec   ports.Codec
	planner ports.Planner

	current  domain.Output
	previous domain.Output

	sensor domain.SensorMessage
	reply  []byte

	sequence     uint32
	resetPending bool
	capabilities domain.Capabilities
	timestamp    uint32
}

// NewContainer creates an output container. planner may be nil, in which case
// generated outputs simply hold the seeded command.
func NewContainer(codec ports.Codec, planner ports.Planner) *Container {
	return &Container{codec: codec, planner: planner, reply: make([]byte, 0, 512)}
}

// SetPlanner replaces the reference generator.
func (c *Container) SetPlanner(p ports.Planner) { c.planner = p }

// PrepareOutputs seeds the command for this cycle: from the feedback on the first
// message of a session, from the previous command otherwise. Without a new command
// the robot is therefore asked to stay where it is.
func (c *Container) PrepareOutputs(in Inputs) {
	cur := in.Current()
	c.capabilities = domain.CapabilitiesOf(cur)
	c.timestamp = cur.Header.Timestamp

	if in.IsFirstMessage() {
		c.resetPending = true
		seedFromFeedback(&c.current, cur.Feedback)
		copyOutput(&c.previous, c.current)
	} else {
		copyOutput(&c.current, c.previous)
		adoptNewChannels(&c.current, cur.Feedback)
	}
	c.current.Signals = domain.CopyFloats(c.current.Signals, cur.Signals)
}

// GenerateDemoOutputs lets the planner refine the seeded command.
func (c *Container) GenerateDemoOutputs(in Inputs, cfg domain.Configuration) {
	if c.planner == nil {
		return
	}
	c.planner.Plan(in.Initial(), in.Current(), cfg, &c.current)
}

// ConstructReply builds and serializes the reply for cfg. When the controller does not
// stream the channel the mode needs, the configured fallback applies: with
// echo_previous the previous command is re-sent in a body the controller does stream
// (header only when it streams neither) and an ErrUnsupportedMode error is returned
// next to a valid Reply; with none there is no reply and the sequence number is not
// consumed.
func (c *Container) ConstructReply(cfg domain.Configuration) error {
	c.ClearReply()
	c.sensor.Reset()

	switch cfg.Mode {
	case domain.ModeJoint, domain.ModeCartesian:
	default:
		return domain.NewError("construct reply", domain.ErrUnsupportedMode, fmt.Errorf("unknown mode %q", cfg.Mode))
	}

	mode := cfg.Mode
	var fallback error
	if !c.capabilities.Supports(mode) {
		fallback = domain.NewError("construct reply", domain.ErrUnsupportedMode,
			fmt.Errorf("controller does not stream %s feedback", cfg.Mode))
		if cfg.Fallback == domain.FallbackNone {
			return fallback
		}
		copyOutput(&c.current, c.previous)
		mode = c.capabilities.Fallback()
	}

	switch mode {
	case domain.ModeJoint:
		c.constructJointBody(cfg)
	case domain.ModeCartesian:
		c.constructCartesianBody(cfg)
	}

	header := c.constructHeader()
	reply, err := c.codec.AppendSensor(c.reply[:0], &c.sensor)
	if err != nil {
		c.ClearReply()
		return fmt.Errorf("serialize reply: %w", err)
	}
	c.reply = reply
	c.sequence = header.Sequence
	c.resetPending = false
	c.current.Header = header
	return fallback
}

func (c *Container) constructJointBody(cfg domain.Configuration) {
	s, out := &c.sensor, &c.current
	s.PlannedJoints, s.PlannedExternal = toWire(cfg.Axes, out.Joints, out.External, s.PlannedJoints, s.PlannedExternal)
	if cfg.UseVelocityOutputs {
		s.SpeedJoints, s.SpeedExternal = toWire(cfg.Axes, out.JointVelocities, out.ExternalVelocities, s.SpeedJoints, s.SpeedExternal)
	}
}

func (c *Container) constructCartesianBody(cfg domain.Configuration) {
	s, out := &c.sensor, &c.current
	if !out.HasPose {
		return
	}
	s.PlannedPose = domain.Pose{
		Position:    out.Pose.Position,
		Orientation: out.Pose.Orientation.Normalized(),
	}
	s.HasPlannedPose = true
	if cfg.UseVelocityOutputs {
		lin, ang := out.LinearVelocity, out.AngularVelocity
		s.SpeedCartesian = append(s.SpeedCartesian[:0], lin.X, lin.Y, lin.Z, ang.X, ang.Y, ang.Z)
	}
}

// constructHeader stamps the reply. The sequence restarts on the first reply of a
// session and advances by exactly one otherwise; it is only committed once the reply
// has been serialized.
func (c *Container) constructHeader() domain.Header {
	seq := c.sequence + 1
	if c.resetPending {
		seq = StartSequence
	}
	c.sensor.Header = domain.Header{Sequence: seq, Timestamp: c.timestamp, Type: domain.MessageCorrection}
	return c.sensor.Header
}

// UpdatePrevious commits the current command once it has been sent.
func (c *Container) UpdatePrevious() { copyOutput(&c.previous, c.current) }

// ClearReply drops the serialized bytes so a stale reply is never re-sent.
func (c *Container) ClearReply() { c.reply = c.reply[:0] }

// Reply is valid until the next ConstructReply or ClearReply.
func (c *Container) Reply() []byte { return c.reply }

func (c *Container) Current() domain.Output  { return c.current }
func (c *Container) Previous() domain.Output { return c.previous }
func (c *Container) SequenceNumber() uint32  { return c.sequence }

// IsFallback reports whether err came from the fallback path of ConstructReply.
func IsFallback(err error) bool { return errors.Is(err, domain.ErrUnsupportedMode) }

func seedFromFeedback(out *domain.Output, fb domain.Feedback) {
	out.Header = domain.Header{}
	out.Joints = domain.CopyFloats(out.Joints, fb.Joints)
	out.External = domain.CopyFloats(out.External, fb.External)
	out.JointVelocities = zeros(out.JointVelocities, len(fb.Joints))
	out.ExternalVelocities = zeros(out.ExternalVelocities, len(fb.External))
	out.Pose, out.HasPose = fb.Pose, fb.HasPose
	if !out.HasPose {
		out.Pose = domain.Pose{Orientation: domain.IdentityQuaternion}
	}
	out.LinearVelocity, out.AngularVelocity = domain.Cartesian{}, domain.Cartesian{}
}

// adoptNewChannels seeds channels that were not streamed when the session began, so
// a command is never built from a target the controller did not report.
func adoptNewChannels(out *domain.Output, fb domain.Feedback) {
	if !out.HasPose && fb.HasPose {
		out.Pose, out.HasPose = fb.Pose, true
	}
	if len(out.Joints) == 0 && len(fb.Joints) > 0 {
		out.Joints = domain.CopyFloats(out.Joints, fb.Joints)
		out.JointVelocities = zeros(out.JointVelocities, len(fb.Joints))
	}
}

// toWire reverts the axis layout applied on input: a seven-axis arm commands its third
// joint through the first external axis.
func toWire(axes domain.Axes, joints, external, robot, ext []float64) ([]float64, []float64) {
	switch {
	case axes == domain.AxesSeven && len(joints) == 7:
		robot = append(robot[:0], joints[0], joints[1], joints[3], joints[4], joints[5], joints[6])
		ext = append(append(ext[:0], joints[2]), external...)
	case axes == domain.AxesNone:
		robot = robot[:0]
		ext = append(ext[:0], external...)
	default:
		robot = append(robot[:0], joints...)
		ext = append(ext[:0], external...)
	}
	return robot, ext
}

func zeros(dst []float64, n int) []float64 {
	dst = dst[:0]
	for i := 0; i < n; i++ {
		dst = append(dst, 0)
	}
	return dst
}

func copyOutput(dst *domain.Output, src domain.Output) {
	joints, ext := dst.Joints, dst.External
	jv, ev := dst.JointVelocities, dst.ExternalVelocities
	signals := dst.Signals

	*dst = src
	dst.Joints = domain.CopyFloats(joints, src.Joints)
	dst.External = domain.CopyFloats(ext, src.External)
	dst.JointVelocities = domain.CopyFloats(jv, src.JointVelocities)
	dst.ExternalVelocities = domain.CopyFloats(ev, src.ExternalVelocities)
	dst.Signals = domain.CopyFloats(signals, src.Signals)
}
