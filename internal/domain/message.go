package domain

// MessageType mirrors EgmHeader.MessageType.
type MessageType int32

const (
	MessageUndefined      MessageType = 0
	MessageCommand        MessageType = 1
	MessageData           MessageType = 2
	MessageCorrection     MessageType = 3
	MessagePathCorrection MessageType = 4
)

// MotorState is the controller's servo power state.
type MotorState int32

const (
	MotorsUndefined MotorState = 0
	MotorsOn        MotorState = 1
	MotorsOff       MotorState = 2
)

// RAPIDState is the controller's program execution state.
type RAPIDState int32

const (
	RAPIDUndefined RAPIDState = 0
	RAPIDStopped   RAPIDState = 1
	RAPIDRunning   RAPIDState = 2
)

// EGMState is the state of the EGM motion-correction instance (MCI) on the controller.
type EGMState int32

const (
	EGMUndefined EGMState = 0
	EGMError     EGMState = 1
	EGMStopped   EGMState = 2
	EGMRunning   EGMState = 3
)

func (s MotorState) String() string {
	switch s {
	case MotorsOn:
		return "on"
	case MotorsOff:
		return "off"
	default:
		return "undefined"
	}
}

func (s RAPIDState) String() string {
	switch s {
	case RAPIDStopped:
		return "stopped"
	case RAPIDRunning:
		return "running"
	default:
		return "undefined"
	}
}

func (s EGMState) String() string {
	switch s {
	case EGMError:
		return "error"
	case EGMStopped:
		return "stopped"
	case EGMRunning:
		return "running"
	default:
		return "undefined"
	}
}

// Header is the sequence/timestamp pair carried by every EGM message.
// Timestamp is the sender's clock in milliseconds.
type Header struct {
	Sequence  uint32      `json:"seq"`
	Timestamp uint32      `json:"tm"`
	Type      MessageType `json:"mtype"`
}

// Cartesian is a position [mm] or a linear/angular vector.
type Cartesian struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Euler angles [deg], as reported by the controller alongside the quaternion.
type Euler struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pose is a Cartesian position plus orientation.
type Pose struct {
	Position    Cartesian  `json:"position" yaml:"position"`
	Orientation Quaternion `json:"orientation" yaml:"orientation"`
	Euler       Euler      `json:"euler" yaml:"-"`
}

// Clock is the controller's wall clock attached to feedback.
type Clock struct {
	Sec  uint64 `json:"sec"`
	Usec uint64 `json:"usec"`
}

// WireJoints holds the feedback of one joint channel exactly as it appears on the wire,
// i.e. before the axis layout is applied.
type WireJoints struct {
	Robot    []float64
	External []float64
	Pose     Pose
	HasPose  bool
	Time     Clock
}

// RobotMessage is the decoded EgmRobot message (controller -> endpoint).
type RobotMessage struct {
	Header          Header
	HasHeader       bool
	Feedback        WireJoints
	HasFeedback     bool
	Planned         WireJoints
	HasPlanned      bool
	MotorState      MotorState
	EGMState        EGMState
	ConvergenceMet  bool
	TestSignals     []float64
	RAPIDState      RAPIDState
	ForceActive     bool
	Force           []float64
	UtilizationRate float64
	HasUtilization  bool
}

// Reset clears the message while keeping slice capacity for reuse.
func (m *RobotMessage) Reset() {
	robot, ext := m.Feedback.Robot[:0], m.Feedback.External[:0]
	probot, pext := m.Planned.Robot[:0], m.Planned.External[:0]
	signals, force := m.TestSignals[:0], m.Force[:0]
	*m = RobotMessage{}
	m.Feedback.Robot, m.Feedback.External = robot, ext
	m.Planned.Robot, m.Planned.External = probot, pext
	m.TestSignals, m.Force = signals, force
}

// SensorMessage is the EgmSensor message (endpoint -> controller).
type SensorMessage struct {
	Header Header

	PlannedJoints   []float64
	PlannedExternal []float64
	PlannedPose     Pose
	HasPlannedPose  bool

	SpeedJoints    []float64
	SpeedExternal  []float64
	SpeedCartesian []float64
}

// Reset clears the message while keeping slice capacity for reuse.
func (m *SensorMessage) Reset() {
	pj, pe := m.PlannedJoints[:0], m.PlannedExternal[:0]
	sj, se, sc := m.SpeedJoints[:0], m.SpeedExternal[:0], m.SpeedCartesian[:0]
	*m = SensorMessage{}
	m.PlannedJoints, m.PlannedExternal = pj, pe
	m.SpeedJoints, m.SpeedExternal, m.SpeedCartesian = sj, se, sc
}
