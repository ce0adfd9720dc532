package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Event type names.
const (
	TypeBuildStarted     = "BuildStarted"
	TypeCommandCompleted = "CommandCompleted"
	TypeStageCompleted   = "StageCompleted"
	TypeBuildFinished    = "BuildFinished"
)

// maxStoredStderr bounds the stderr kept per command event.
const maxStoredStderr = 4096

func newBase(buildID, eventType string, payload any) (BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return BaseEvent{}, errors.EventStoreError("failed to marshal "+eventType+" payload").
			WithCause(err).
			WithContext("build_id", buildID).
			Build()
	}
	return BaseEvent{
		EventBuildID:   buildID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   data,
	}, nil
}

// BuildStartedData describes the build being started.
type BuildStartedData struct {
	Project  string `json:"project"`
	Sources  int    `json:"sources"`
	Workers  int    `json:"workers"`
	Channels int    `json:"channels"`
	Shell    string `json:"shell"`
}

// BuildStarted is emitted when a build begins.
type BuildStarted struct {
	BaseEvent
	Data BuildStartedData
}

// NewBuildStarted creates a BuildStarted event.
func NewBuildStarted(buildID string, data BuildStartedData) (*BuildStarted, error) {
	base, err := newBase(buildID, TypeBuildStarted, data)
	if err != nil {
		return nil, err
	}
	return &BuildStarted{BaseEvent: base, Data: data}, nil
}

// CommandCompletedData records one toolchain command.
type CommandCompletedData struct {
	Stage      string `json:"stage"`
	Index      int    `json:"index,omitempty"`
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	Stderr     string `json:"stderr,omitempty"`
}

// CommandCompleted is emitted for every command that produced a result.
type CommandCompleted struct {
	BaseEvent
	Data CommandCompletedData
}

// NewCommandCompleted creates a CommandCompleted event. Stderr is truncated.
func NewCommandCompleted(buildID string, data CommandCompletedData) (*CommandCompleted, error) {
	if len(data.Stderr) > maxStoredStderr {
		data.Stderr = data.Stderr[:maxStoredStderr]
	}
	base, err := newBase(buildID, TypeCommandCompleted, data)
	if err != nil {
		return nil, err
	}
	return &CommandCompleted{BaseEvent: base, Data: data}, nil
}

// StageCompletedData records the end of a scheduler stage.
type StageCompletedData struct {
	Stage      string `json:"stage"`
	Succeeded  bool   `json:"succeeded"`
	DurationMS int64  `json:"duration_ms"`
}

// StageCompleted is emitted when a stage finishes, successfully or not.
type StageCompleted struct {
	BaseEvent
	Data StageCompletedData
}

// NewStageCompleted creates a StageCompleted event.
func NewStageCompleted(buildID, stage string, succeeded bool, d time.Duration) (*StageCompleted, error) {
	data := StageCompletedData{Stage: stage, Succeeded: succeeded, DurationMS: d.Milliseconds()}
	base, err := newBase(buildID, TypeStageCompleted, data)
	if err != nil {
		return nil, err
	}
	return &StageCompleted{BaseEvent: base, Data: data}, nil
}

// BuildFinishedData is the final outcome of a build.
type BuildFinishedData struct {
	ExitCode      int    `json:"exit_code"`
	State         string `json:"state"`
	Completed     int    `json:"completed"`
	Total         int    `json:"total"`
	FailedCommand string `json:"failed_command,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}

// BuildFinished is emitted once per build.
type BuildFinished struct {
	BaseEvent
	Data BuildFinishedData
}

// NewBuildFinished creates a BuildFinished event.
func NewBuildFinished(buildID string, data BuildFinishedData) (*BuildFinished, error) {
	base, err := newBase(buildID, TypeBuildFinished, data)
	if err != nil {
		return nil, err
	}
	return &BuildFinished{BaseEvent: base, Data: data}, nil
}
