package future

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a Future.
type State int32

const (
	Created State = iota
	Scheduled
	Running
	Completed
	Cancelled
	Faulted
)

var stateNames = [...]string{"created", "scheduled", "running", "completed", "cancelled", "faulted"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether s is one of Completed, Cancelled or Faulted.
func (s State) Terminal() bool {
	return s >= Completed
}

var (
	// ErrCancelled is returned by Get for a cancelled future. Bodies may return it
	// (or wrap it) to report that they stopped because the token was set.
	ErrCancelled = errors.New("future: cancelled")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("future: already started")
)

// PanicError is the fault stored when a body panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("future: body panicked: %v", e.Value)
}
