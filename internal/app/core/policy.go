package core

import (
	"time"

	"github.com/qcr/abb-libegm/internal/domain"
)

// DefaultLivenessWindow is how long a session survives without a valid message.
const DefaultLivenessWindow = 100 * time.Millisecond

// SessionPolicy decides when a valid message starts a new session. A session always
// ends when the liveness window elapses; the restart flags additionally detect a
// controller that reconnects faster than that.
type SessionPolicy struct {
	LivenessWindow time.Duration `yaml:"liveness_window" json:"liveness_window"`
	// RestartOnSequenceReset starts a new session when the inbound sequence number goes
	// backwards (the controller restarted its EGM instance).
	RestartOnSequenceReset bool `yaml:"restart_on_sequence_reset" json:"restart_on_sequence_reset"`
	// RestartOnTimestampRegression starts a new session when the controller clock
	// jumps backwards.
	RestartOnTimestampRegression bool `yaml:"restart_on_timestamp_regression" json:"restart_on_timestamp_regression"`
	// DropDuplicates discards a message whose sequence number and timestamp equal the
	// current one.
	DropDuplicates bool `yaml:"drop_duplicates" json:"drop_duplicates"`
}

func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		LivenessWindow:               DefaultLivenessWindow,
		RestartOnSequenceReset:       true,
		RestartOnTimestampRegression: true,
		DropDuplicates:               true,
	}
}

type decision int

const (
	continueSession decision = iota
	restartSession
	dropDuplicate
)

func (d decision) String() string {
	switch d {
	case restartSession:
		return "restart"
	case dropDuplicate:
		return "duplicate"
	default:
		return "continue"
	}
}

// decide classifies next against the last accepted header of an active session.
func (p SessionPolicy) decide(last, next domain.Header) decision {
	if p.DropDuplicates && next.Sequence == last.Sequence && next.Timestamp == last.Timestamp {
		return dropDuplicate
	}
	if p.RestartOnSequenceReset && int32(next.Sequence-last.Sequence) < 0 {
		return restartSession
	}
	if p.RestartOnTimestampRegression && int32(next.Timestamp-last.Timestamp) < 0 {
		return restartSession
	}
	return continueSession
}
