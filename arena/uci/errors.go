package uci

import (
	"errors"
	"fmt"
	"time"
)

// ProtocolError is a malformed or unexpected reply from an engine.
type ProtocolError struct {
	Engine string
	Line   string
	Msg    string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("uci %s: %s", e.Engine, e.Msg)
	}
	return fmt.Sprintf("uci %s: %s: %q", e.Engine, e.Msg, e.Line)
}

// TimeoutError means the engine did not answer before its deadline.
// The process has already been killed when this is returned.
type TimeoutError struct {
	Engine string
	Op     string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("uci %s: no reply to %s after %s", e.Engine, e.Op, e.After.Round(time.Millisecond))
}

// CrashError means the engine process exited or closed its output.
type CrashError struct {
	Engine string
	Op     string
	Err    error
}

func (e *CrashError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("uci %s: engine exited during %s", e.Engine, e.Op)
	}
	return fmt.Sprintf("uci %s: engine exited during %s: %v", e.Engine, e.Op, e.Err)
}

func (e *CrashError) Unwrap() error { return e.Err }

// IsFault reports whether err is an engine fault that forfeits the game,
// as opposed to cancellation or a harness error.
func IsFault(err error) bool {
	var pe *ProtocolError
	var te *TimeoutError
	var ce *CrashError
	return errors.As(err, &pe) || errors.As(err, &te) || errors.As(err, &ce)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
