package domain

import "time"

// Feedback is one joint/Cartesian channel after the axis layout has been applied.
// Joints are in degrees, positions in millimetres.
type Feedback struct {
	Joints   []float64 `json:"joints,omitempty"`
	External []float64 `json:"external,omitempty"`
	Pose     Pose      `json:"pose"`
	HasPose  bool      `json:"has_pose"`
	Time     Clock     `json:"time"`
}

// Clone returns a deep copy.
func (f Feedback) Clone() Feedback {
	f.Joints = cloneFloats(f.Joints)
	f.External = cloneFloats(f.External)
	return f
}

// Status is the controller-declared execution state.
type Status struct {
	MotorState      MotorState `json:"motor_state"`
	RAPIDState      RAPIDState `json:"rapid_state"`
	EGMState        EGMState   `json:"egm_state"`
	ConvergenceMet  bool       `json:"convergence_met"`
	UtilizationRate float64    `json:"utilization_rate"`
}

// Velocity holds joint [deg/s] and Cartesian [mm/s, deg/s] velocities.
type Velocity struct {
	Joints   []float64 `json:"joints,omitempty"`
	External []float64 `json:"external,omitempty"`
	Linear   Cartesian `json:"linear"`
	Angular  Cartesian `json:"angular"`
}

// Clone returns a deep copy.
func (v Velocity) Clone() Velocity {
	v.Joints = cloneFloats(v.Joints)
	v.External = cloneFloats(v.External)
	return v
}

// MeasuredForce is the force-control feedback, when the controller has it enabled.
type MeasuredForce struct {
	Active bool      `json:"active"`
	Force  []float64 `json:"force,omitempty"`
}

// Input is one decoded telemetry snapshot from the controller.
type Input struct {
	Header   Header        `json:"header"`
	Feedback Feedback      `json:"feedback"`
	Planned  Feedback      `json:"planned"`
	Status   Status        `json:"status"`
	Signals  []float64     `json:"signals,omitempty"`
	Force    MeasuredForce `json:"force"`
	Velocity Velocity      `json:"velocity"`
}

// Clone returns a deep copy that shares no slices with in.
func (in Input) Clone() Input {
	in.Feedback = in.Feedback.Clone()
	in.Planned = in.Planned.Clone()
	in.Signals = cloneFloats(in.Signals)
	in.Force.Force = cloneFloats(in.Force.Force)
	in.Velocity = in.Velocity.Clone()
	return in
}

// StatesOk reports whether motors are on, RAPID is running and EGM is running.
func (in Input) StatesOk() bool {
	return in.Status.MotorState == MotorsOn &&
		in.Status.RAPIDState == RAPIDRunning &&
		in.Status.EGMState == EGMRunning
}

// Capabilities is what the controller advertises through the channels it streams.
type Capabilities struct {
	Joint     bool
	Cartesian bool
}

// CapabilitiesOf derives the supported execution modes from a decoded input.
func CapabilitiesOf(in Input) Capabilities {
	return Capabilities{
		Joint:     len(in.Feedback.Joints) > 0,
		Cartesian: in.Feedback.HasPose,
	}
}

// Supports reports whether mode can be commanded.
func (c Capabilities) Supports(mode Mode) bool {
	switch mode {
	case ModeJoint:
		return c.Joint
	case ModeCartesian:
		return c.Cartesian
	default:
		return false
	}
}

// Fallback picks a mode the controller can be commanded in, preferring joints. It is
// empty when neither channel is streamed.
func (c Capabilities) Fallback() Mode {
	switch {
	case c.Joint:
		return ModeJoint
	case c.Cartesian:
		return ModeCartesian
	default:
		return ""
	}
}

// Output is one command snapshot sent to the controller.
type Output struct {
	Header Header `json:"header"`

	Joints             []float64 `json:"joints,omitempty"`
	External           []float64 `json:"external,omitempty"`
	JointVelocities    []float64 `json:"joint_velocities,omitempty"`
	ExternalVelocities []float64 `json:"external_velocities,omitempty"`

	Pose            Pose      `json:"pose"`
	HasPose         bool      `json:"has_pose"`
	LinearVelocity  Cartesian `json:"linear_velocity"`
	AngularVelocity Cartesian `json:"angular_velocity"`

	// Signals are passed through to the log untouched.
	Signals []float64 `json:"signals,omitempty"`
}

// Clone returns a deep copy that shares no slices with out.
func (out Output) Clone() Output {
	out.Joints = cloneFloats(out.Joints)
	out.External = cloneFloats(out.External)
	out.JointVelocities = cloneFloats(out.JointVelocities)
	out.ExternalVelocities = cloneFloats(out.ExternalVelocities)
	out.Signals = cloneFloats(out.Signals)
	return out
}

// SessionData is the latest header/status pair of the active (or last) session.
type SessionData struct {
	Header Header `json:"header"`
	Status Status `json:"status"`
}

// CycleRecord is the immutable per-cycle snapshot handed to loggers.
type CycleRecord struct {
	SessionID  string        `json:"session_id"`
	Received   time.Time     `json:"received"`
	Elapsed    time.Duration `json:"elapsed"`
	SampleTime float64       `json:"sample_time"`
	Input      Input         `json:"input"`
	Output     Output        `json:"output"`
	Replied    bool          `json:"replied"`
}

func cloneFloats(src []float64) []float64 {
	if src == nil {
		return nil
	}
	dst := make([]float64, len(src))
	copy(dst, src)
	return dst
}

// CopyFloats copies src into dst, reusing dst's capacity.
func CopyFloats(dst, src []float64) []float64 {
	return append(dst[:0], src...)
}
