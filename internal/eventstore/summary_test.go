package eventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

func emitAll(t *testing.T, em *Emitter, events ...Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, em.EmitEvent(t.Context(), e))
	}
}

func TestSummarizeSucceededBuild(t *testing.T) {
	store := newTestStore(t)
	em := NewEmitter(store)

	started, err := NewBuildStarted(testBuildID, BuildStartedData{Project: "MAIN", Sources: 2, Workers: 4, Channels: 4, Shell: "posix"})
	require.NoError(t, err)
	c1, err := NewCommandCompleted(testBuildID, CommandCompletedData{Stage: "compile", Index: 1, Command: "gcc a.c", DurationMS: 10})
	require.NoError(t, err)
	c2, err := NewCommandCompleted(testBuildID, CommandCompletedData{Stage: "compile", Index: 2, Command: "gcc b.c", DurationMS: 12})
	require.NoError(t, err)
	stage, err := NewStageCompleted(testBuildID, "compile", true, 30*time.Millisecond)
	require.NoError(t, err)
	finished, err := NewBuildFinished(testBuildID, BuildFinishedData{ExitCode: 0, State: "succeeded", Completed: 2, Total: 2, DurationMS: 1500})
	require.NoError(t, err)
	emitAll(t, em, started, c1, c2, stage, finished)

	events, err := store.GetByBuildID(t.Context(), testBuildID)
	require.NoError(t, err)
	s := Summarize(testBuildID, events)

	assert.Equal(t, StatusSucceeded, s.Status)
	assert.Equal(t, "MAIN", s.Project)
	assert.Equal(t, 2, s.Sources)
	assert.Equal(t, 2, s.Commands)
	assert.Equal(t, 1500*time.Millisecond, s.Duration)
	require.NotNil(t, s.FinishedAt)
	assert.False(t, s.StartedAt.IsZero())
}

func TestSummarizeFailedAndRunning(t *testing.T) {
	started, err := NewBuildStarted(testBuildID, BuildStartedData{Project: "MAIN"})
	require.NoError(t, err)

	running := Summarize(testBuildID, []Event{started})
	assert.Equal(t, StatusRunning, running.Status)
	assert.Nil(t, running.FinishedAt)

	finished, err := NewBuildFinished(testBuildID, BuildFinishedData{ExitCode: 7, State: "failed", FailedCommand: "gcc bad.c"})
	require.NoError(t, err)
	failed := Summarize(testBuildID, []Event{started, finished})
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, 7, failed.ExitCode)
	assert.Equal(t, "gcc bad.c", failed.FailedCommand)
}

func TestSummarizeSkipsUndecodablePayload(t *testing.T) {
	bad := &BaseEvent{EventBuildID: testBuildID, EventType: TypeBuildFinished, EventPayload: []byte("not json")}
	s := Summarize(testBuildID, []Event{bad})
	assert.Equal(t, StatusRunning, s.Status)
}

func TestCommandCompletedTruncatesStderr(t *testing.T) {
	long := make([]byte, maxStoredStderr*2)
	for i := range long {
		long[i] = 'x'
	}
	e, err := NewCommandCompleted(testBuildID, CommandCompletedData{Stage: "compile", Stderr: string(long)})
	require.NoError(t, err)
	assert.Len(t, e.Data.Stderr, maxStoredStderr)
}

func TestEmitterNilSafe(t *testing.T) {
	started, err := NewBuildStarted(testBuildID, BuildStartedData{})
	require.NoError(t, err)

	var nilEmitter *Emitter
	assert.NoError(t, nilEmitter.EmitEvent(t.Context(), started))
	assert.NoError(t, NewEmitter(nil).EmitEvent(t.Context(), started))
}

func TestEmitterClosedStoreReturnsEventStoreError(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	started, err := NewBuildStarted(testBuildID, BuildStartedData{})
	require.NoError(t, err)
	err = NewEmitter(store).EmitEvent(t.Context(), started)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryEventStore))
}

func TestBuildsInRange(t *testing.T) {
	store := newTestStore(t)
	em := NewEmitter(store)
	before := time.Now().Add(-time.Second)

	oldStarted, err := NewBuildStarted("old", BuildStartedData{Project: "MAIN"})
	require.NoError(t, err)
	emitAll(t, em, oldStarted)

	time.Sleep(5 * time.Millisecond)
	mid := time.Now()
	time.Sleep(5 * time.Millisecond)

	oldFinished, err := NewBuildFinished("old", BuildFinishedData{ExitCode: 7, State: "failed"})
	require.NoError(t, err)
	newStarted, err := NewBuildStarted("new", BuildStartedData{Project: "MAIN"})
	require.NoError(t, err)
	newFinished, err := NewBuildFinished("new", BuildFinishedData{ExitCode: 0, State: "succeeded"})
	require.NoError(t, err)
	emitAll(t, em, oldFinished, newStarted, newFinished)
	after := time.Now().Add(time.Second)

	builds, err := BuildsInRange(t.Context(), store, mid, after, 0)
	require.NoError(t, err)
	require.Len(t, builds, 1, "a build started before the range is left out")
	assert.Equal(t, "new", builds[0].BuildID)
	assert.Equal(t, StatusSucceeded, builds[0].Status)

	builds, err = BuildsInRange(t.Context(), store, before, after, 0)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, "new", builds[0].BuildID)
	assert.Equal(t, "old", builds[1].BuildID)
	assert.Equal(t, StatusFailed, builds[1].Status, "summaries fold events outside the range too")

	builds, err = BuildsInRange(t.Context(), store, before, after, 1)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, "new", builds[0].BuildID)
}
