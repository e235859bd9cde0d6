package domain

import "errors"

// Error kinds returned by the cycle pipelines. None of them is fatal.
var (
	ErrParse                = errors.New("egm: malformed message")
	ErrSchemaMismatch       = errors.New("egm: schema mismatch")
	ErrUnsupportedMode      = errors.New("egm: unsupported mode")
	ErrSessionTimeout       = errors.New("egm: session timeout")
	ErrInvalidConfiguration = errors.New("egm: invalid configuration")
)

// Error carries the failing operation and the underlying cause next to its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind, so errors.Is(err, ErrParse) works on wrapped causes.
func (e *Error) Is(target error) bool { return target == e.Kind }

// NewError builds an *Error of the given kind.
func NewError(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
