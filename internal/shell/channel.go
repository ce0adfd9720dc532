package shell

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotStarted is reported when a command is sent before Start.
	ErrNotStarted = errors.New("process not started")
	// ErrChannelBusy is reported when a command is sent while another is in flight.
	ErrChannelBusy = errors.New("previous command still running")
	// ErrChannelClosed is reported when stdin is closed or the shell has exited.
	ErrChannelClosed = errors.New("channel closed")
	// ErrWriteFailed is reported when the command could not be written to the shell.
	ErrWriteFailed = errors.New("failed to write to process stdin")
)

// Result is the outcome of one command. Succeeded is true iff ExitCode == 0.
type Result struct {
	Command   string
	Stdout    string
	Stderr    string
	ExitCode  int
	Succeeded bool
	Duration  time.Duration
	// Err is set when the command never produced a frame (busy, closed,
	// write failure, caller cancellation).
	Err error
}

func failure(command string, err error) Result {
	return Result{Command: command, Stderr: err.Error(), ExitCode: -1, Err: err}
}

// Channel runs command strings in a persistent shell, one at a time.
type Channel interface {
	Start(ctx context.Context) error
	RunCommand(ctx context.Context, command string) Result
	Busy() bool
	Close(ctx context.Context) error
}

// Runner executes a single command and returns its result. Pool and Session
// both satisfy it.
type Runner interface {
	Run(ctx context.Context, command string) Result
}
