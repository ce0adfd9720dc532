package build

import "git.home.luguber.info/inful/fwbuilder/internal/metrics"

// State is the scheduler's position in a run.
type State string

const (
	StateCompiling        State = "compiling"
	StateLinking          State = "linking"
	StateExtractingBinary State = "extracting_binary"
	StateExtractingHex    State = "extracting_hex"
	StateDone             State = "done"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

// IsTerminal returns true if the run has finished.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// IsSuccess returns true if every step succeeded.
func (s State) IsSuccess() bool { return s == StateDone }

// stage maps a running state to its metrics and event label.
func (s State) stage() string {
	switch s {
	case StateCompiling:
		return metrics.StageCompile
	case StateLinking:
		return metrics.StageLink
	case StateExtractingBinary:
		return metrics.StageBin
	case StateExtractingHex:
		return metrics.StageHex
	default:
		return string(s)
	}
}
