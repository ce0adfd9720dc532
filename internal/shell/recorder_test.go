package shell

import (
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
)

type countingRecorder struct {
	metrics.NoopRecorder
	retries int
}

func (c *countingRecorder) IncShellStartRetry() { c.retries++ }

var _ metrics.Recorder = (*countingRecorder)(nil)
