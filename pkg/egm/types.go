package egm

import (
	"github.com/qcr/abb-libegm/internal/app/core"
	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

// Input is one decoded telemetry snapshot from the controller.
type Input = domain.Input

// Output is one command snapshot sent back to the controller.
type Output = domain.Output

// CycleRecord is the immutable per-cycle snapshot handed to sinks.
type CycleRecord = domain.CycleRecord

// Configuration is the runtime configuration of an interface. Changes apply at the
// next session boundary.
type Configuration = domain.Configuration

// SessionData is the latest header and status of the current session.
type SessionData = domain.SessionData

// SessionPolicy decides when a message starts a new session.
type SessionPolicy = core.SessionPolicy

type (
	Header        = domain.Header
	Pose          = domain.Pose
	Cartesian     = domain.Cartesian
	Quaternion    = domain.Quaternion
	Status        = domain.Status
	Feedback      = domain.Feedback
	Velocity      = domain.Velocity
	RobotMessage  = domain.RobotMessage
	SensorMessage = domain.SensorMessage
)

type (
	Axes           = domain.Axes
	Mode           = domain.Mode
	FallbackPolicy = domain.FallbackPolicy
	MotorState     = domain.MotorState
	RAPIDState     = domain.RAPIDState
	EGMState       = domain.EGMState
)

const (
	AxesNone  = domain.AxesNone
	AxesSix   = domain.AxesSix
	AxesSeven = domain.AxesSeven

	ModeJoint     = domain.ModeJoint
	ModeCartesian = domain.ModeCartesian

	FallbackEchoPrevious = domain.FallbackEchoPrevious
	FallbackNone         = domain.FallbackNone

	MotorsOn     = domain.MotorsOn
	MotorsOff    = domain.MotorsOff
	RAPIDRunning = domain.RAPIDRunning
	RAPIDStopped = domain.RAPIDStopped
	EGMRunning   = domain.EGMRunning
	EGMStopped   = domain.EGMStopped
)

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = domain.IdentityQuaternion

var (
	ErrParse                = domain.ErrParse
	ErrSchemaMismatch       = domain.ErrSchemaMismatch
	ErrUnsupportedMode      = domain.ErrUnsupportedMode
	ErrSessionTimeout       = domain.ErrSessionTimeout
	ErrInvalidConfiguration = domain.ErrInvalidConfiguration
)

// Codec encodes and decodes the EGM wire messages.
type Codec = ports.Codec

// Planner produces the reference command for each cycle.
type Planner = ports.Planner

// CycleSink persists batches of cycle records off the control loop.
type CycleSink = ports.CycleSink

// CycleQueue buffers cycle records between the control loop and the sink.
type CycleQueue = ports.CycleQueue

// Observability emits logs and metrics.
type Observability = ports.Observability

// Field is a structured log field.
type Field = ports.Field

// Handler turns one inbound datagram into the reply to send.
type Handler = ports.Handler
