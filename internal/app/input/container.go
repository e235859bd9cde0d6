// Package input turns raw EgmRobot datagrams into session-scoped, time-consistent
// inputs: decode, axis-layout extraction, sample-time and velocity estimation.
package input

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

// minSampleTime is the smallest interval [s] velocities are differentiated over.
const minSampleTime = 1e-6

var errNotParsed = errors.New("no parsed message")

// Container holds the input history of one session. It is owned by the orchestrator
// and must not be used concurrently.
type Container struct {
	codec ports.Codec
	msg   domain.RobotMessage

	parsed bool

	initial  domain.Input
	current  domain.Input
	previous domain.Input
	scratch  domain.Input

	nominal    float64
	sampleTime float64

	// boundary is set until the first successful extraction of a session.
	boundary     bool
	firstMessage bool
	hasNewData   bool
}

// NewContainer creates a container that starts on a session boundary.
func NewContainer(codec ports.Codec, nominal time.Duration) *Container {
	c := &Container{codec: codec, boundary: true}
	c.SetNominalCycleTime(nominal)
	c.sampleTime = c.nominal
	return c
}

// SetNominalCycleTime sets the sample time assumed until one has been measured.
func (c *Container) SetNominalCycleTime(d time.Duration) {
	if d <= 0 {
		d = domain.DefaultNominalCycleTime
	}
	c.nominal = d.Seconds()
}

// ResetSession marks the next extraction as the first message of a new session.
func (c *Container) ResetSession() {
	c.boundary = true
	c.firstMessage = false
	c.hasNewData = false
}

// ParseFromArray decodes data. On failure current and previous are left untouched.
func (c *Container) ParseFromArray(data []byte) error {
	c.parsed = false
	c.hasNewData = false
	if err := c.codec.DecodeRobot(data, &c.msg); err != nil {
		if errors.Is(err, domain.ErrParse) {
			return err
		}
		return domain.NewError("parse", domain.ErrParse, err)
	}
	c.parsed = true
	return nil
}

// ParsedHeader returns the header of the last successfully parsed message.
func (c *Container) ParsedHeader() domain.Header { return c.msg.Header }

// ExtractParsedInformation maps the parsed message into the configured axis layout.
func (c *Container) ExtractParsedInformation(axes domain.Axes) error {
	if !c.parsed {
		return domain.NewError("extract", domain.ErrParse, errNotParsed)
	}

	next := &c.scratch
	var err error
	next.Feedback.Joints, next.Feedback.External, err = mapJoints(axes, c.msg.Feedback, next.Feedback.Joints, next.Feedback.External)
	if err != nil {
		return domain.NewError("extract", domain.ErrSchemaMismatch, fmt.Errorf("feedback: %w", err))
	}
	next.Feedback.Pose, next.Feedback.HasPose, next.Feedback.Time = c.msg.Feedback.Pose, c.msg.Feedback.HasPose, c.msg.Feedback.Time

	// Planned values are informational only; a layout mismatch there just drops them.
	next.Planned.Joints, next.Planned.External, err = mapJoints(axes, c.msg.Planned, next.Planned.Joints, next.Planned.External)
	if err != nil || !c.msg.HasPlanned {
		next.Planned.Joints, next.Planned.External = next.Planned.Joints[:0], next.Planned.External[:0]
	}
	next.Planned.Pose, next.Planned.HasPose, next.Planned.Time = c.msg.Planned.Pose, c.msg.Planned.HasPose, c.msg.Planned.Time

	next.Header = c.msg.Header
	next.Status = domain.Status{
		MotorState:      c.msg.MotorState,
		RAPIDState:      c.msg.RAPIDState,
		EGMState:        c.msg.EGMState,
		ConvergenceMet:  c.msg.ConvergenceMet,
		UtilizationRate: c.msg.UtilizationRate,
	}
	next.Signals = domain.CopyFloats(next.Signals, c.msg.TestSignals)
	next.Force.Active = c.msg.ForceActive
	next.Force.Force = domain.CopyFloats(next.Force.Force, c.msg.Force)
	next.Velocity.Joints = zeros(next.Velocity.Joints, len(next.Feedback.Joints))
	next.Velocity.External = zeros(next.Velocity.External, len(next.Feedback.External))
	next.Velocity.Linear, next.Velocity.Angular = domain.Cartesian{}, domain.Cartesian{}

	c.current, c.scratch = c.scratch, c.current
	c.parsed = false
	c.hasNewData = true

	if c.boundary {
		c.boundary = false
		c.firstMessage = true
		c.initial = c.current.Clone()
		copyInput(&c.previous, c.current)
		c.sampleTime = c.nominal
	} else {
		c.firstMessage = false
	}
	return nil
}

// EstimateSampleTime measures the interval between current and previous [s]. Only
// strictly positive, finite intervals are accepted; otherwise the last valid estimate
// is kept.
func (c *Container) EstimateSampleTime() float64 {
	if c.firstMessage {
		return c.sampleTime
	}
	delta := int32(c.current.Header.Timestamp - c.previous.Header.Timestamp)
	dt := float64(delta) / 1000
	if dt > 0 && !math.IsInf(dt, 0) {
		c.sampleTime = dt
	}
	return c.sampleTime
}

// EstimateAllVelocities differentiates the current feedback against the previous one.
func (c *Container) EstimateAllVelocities() {
	cur, prev := &c.current, &c.previous
	dt := c.sampleTime
	if dt < minSampleTime {
		cur.Velocity.Joints = domain.CopyFloats(cur.Velocity.Joints, prev.Velocity.Joints)
		cur.Velocity.External = domain.CopyFloats(cur.Velocity.External, prev.Velocity.External)
		cur.Velocity.Linear, cur.Velocity.Angular = prev.Velocity.Linear, prev.Velocity.Angular
		return
	}

	differentiate(cur.Velocity.Joints, cur.Feedback.Joints, prev.Feedback.Joints, dt)
	differentiate(cur.Velocity.External, cur.Feedback.External, prev.Feedback.External, dt)

	if cur.Feedback.HasPose && prev.Feedback.HasPose {
		p, q := cur.Feedback.Pose, prev.Feedback.Pose
		cur.Velocity.Linear = p.Position.Sub(q.Position).Scale(1 / dt)
		cur.Velocity.Angular = domain.RadToDeg(domain.AngularDisplacement(q.Orientation, p.Orientation)).Scale(1 / dt)
	}
}

// StatesOk reports whether motors are on and both RAPID and EGM are running.
func (c *Container) StatesOk() bool { return c.current.StatesOk() }

// UpdatePrevious commits current into previous once the cycle's reply is built.
func (c *Container) UpdatePrevious() {
	copyInput(&c.previous, c.current)
}

// Initial, Current and Previous share memory with the container; use Clone to keep
// them beyond the current cycle.
func (c *Container) Initial() domain.Input  { return c.initial }
func (c *Container) Current() domain.Input  { return c.current }
func (c *Container) Previous() domain.Input { return c.previous }

func (c *Container) EstimatedSampleTime() float64 { return c.sampleTime }
func (c *Container) IsFirstMessage() bool         { return c.firstMessage }
func (c *Container) HasNewData() bool             { return c.hasNewData }

// mapJoints applies the axis layout to one wire channel. A seven-axis arm reports its
// third physical joint as the first external axis.
func mapJoints(axes domain.Axes, wire domain.WireJoints, joints, external []float64) ([]float64, []float64, error) {
	robot, ext := wire.Robot, wire.External
	switch axes {
	case domain.AxesSix:
		if len(robot) != 6 {
			return joints, external, fmt.Errorf("expected 6 robot joints, got %d", len(robot))
		}
		return append(joints[:0], robot...), append(external[:0], ext...), nil
	case domain.AxesSeven:
		if len(robot) != 6 || len(ext) < 1 {
			return joints, external, fmt.Errorf("expected 6 robot + 1 external joints, got %d + %d", len(robot), len(ext))
		}
		joints = append(joints[:0], robot[0], robot[1], ext[0], robot[2], robot[3], robot[4], robot[5])
		return joints, append(external[:0], ext[1:]...), nil
	case domain.AxesNone:
		return joints[:0], append(external[:0], ext...), nil
	default:
		return joints, external, fmt.Errorf("unknown axis layout %d", axes)
	}
}

func differentiate(dst, cur, prev []float64, dt float64) {
	for i := range dst {
		if i < len(prev) && len(prev) == len(cur) {
			dst[i] = (cur[i] - prev[i]) / dt
		} else {
			dst[i] = 0
		}
	}
}

func zeros(dst []float64, n int) []float64 {
	dst = dst[:0]
	for i := 0; i < n; i++ {
		dst = append(dst, 0)
	}
	return dst
}

func copyInput(dst *domain.Input, src domain.Input) {
	joints, ext := dst.Feedback.Joints, dst.Feedback.External
	pjoints, pext := dst.Planned.Joints, dst.Planned.External
	signals, force := dst.Signals, dst.Force.Force
	vj, ve := dst.Velocity.Joints, dst.Velocity.External

	*dst = src
	dst.Feedback.Joints = domain.CopyFloats(joints, src.Feedback.Joints)
	dst.Feedback.External = domain.CopyFloats(ext, src.Feedback.External)
	dst.Planned.Joints = domain.CopyFloats(pjoints, src.Planned.Joints)
	dst.Planned.External = domain.CopyFloats(pext, src.Planned.External)
	dst.Signals = domain.CopyFloats(signals, src.Signals)
	dst.Force.Force = domain.CopyFloats(force, src.Force.Force)
	dst.Velocity.Joints = domain.CopyFloats(vj, src.Velocity.Joints)
	dst.Velocity.External = domain.CopyFloats(ve, src.Velocity.External)
}
