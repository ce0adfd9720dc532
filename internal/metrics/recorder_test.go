package metrics

import (
	"sync"
	"time"
)

// testRecorder counts calls; shared with other tests in this package.
type testRecorder struct {
	mu               sync.Mutex
	commandDurations map[string]int
	commandResults   map[string]map[bool]int
	buildDurations   int
	buildOutcomes    map[BuildOutcome]int
	workers          int
	shellRetries     int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{
		commandDurations: map[string]int{},
		commandResults:   map[string]map[bool]int{},
		buildOutcomes:    map[BuildOutcome]int{},
	}
}

func (t *testRecorder) ObserveCommandDuration(stage string, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commandDurations[stage]++
}

func (t *testRecorder) IncCommandResult(stage string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.commandResults[stage]
	if !ok {
		m = map[bool]int{}
		t.commandResults[stage] = m
	}
	m[success]++
}

func (t *testRecorder) ObserveBuildDuration(time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buildDurations++
}

func (t *testRecorder) IncBuildOutcome(o BuildOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buildOutcomes[o]++
}

func (t *testRecorder) SetWorkers(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workers = n
}

func (t *testRecorder) IncShellStartRetry() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shellRetries++
}

var _ Recorder = (*testRecorder)(nil)
