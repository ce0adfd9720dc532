package metrics

import "time"

// Stage names used as label values.
const (
	StageCompile = "compile"
	StageLink    = "link"
	StageBin     = "bin"
	StageHex     = "hex"
)

// BuildOutcome is the final status of a build run.
type BuildOutcome string

const (
	OutcomeSuccess   BuildOutcome = "success"
	OutcomeFailed    BuildOutcome = "failed"
	OutcomeCancelled BuildOutcome = "cancelled"
	OutcomeError     BuildOutcome = "error"
)

// Recorder defines observability hooks for command and build metrics.
// Implementations may forward to Prometheus. NoopRecorder is the default so
// components never need nil checks.
type Recorder interface {
	ObserveCommandDuration(stage string, d time.Duration)
	IncCommandResult(stage string, success bool)
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome BuildOutcome)
	SetWorkers(n int)
	IncShellStartRetry()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCommandDuration(string, time.Duration) {}
func (NoopRecorder) IncCommandResult(string, bool)                {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)           {}
func (NoopRecorder) IncBuildOutcome(BuildOutcome)                 {}
func (NoopRecorder) SetWorkers(int)                               {}
func (NoopRecorder) IncShellStartRetry()                          {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
