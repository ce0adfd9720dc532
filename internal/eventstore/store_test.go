package eventstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBuildID = "build-1"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	payload := []byte(`{"test":"data"}`)
	if err := store.Append(ctx, testBuildID, "TestEvent", payload, map[string]string{"key": "value"}); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetByBuildID(ctx, testBuildID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	assert.Equal(t, testBuildID, e.BuildID())
	assert.Equal(t, "TestEvent", e.Type())
	assert.JSONEq(t, string(payload), string(e.Payload()))
	assert.Equal(t, "value", e.Metadata()["key"])
	assert.Positive(t, e.ID())
	assert.WithinDuration(t, time.Now(), e.Timestamp(), 5*time.Second)
}

func TestEventStoreNilPayloadAndMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.Append(ctx, testBuildID, "Empty", nil, nil))
	events, err := store.GetByBuildID(ctx, testBuildID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "{}", string(events[0].Payload()))
	assert.Nil(t, events[0].Metadata())
}

func TestEventStoreGetRange(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()

	before := time.Now().Add(-time.Second)
	require.NoError(t, store.Append(ctx, "a", "E", nil, nil))
	require.NoError(t, store.Append(ctx, "b", "E", nil, nil))
	after := time.Now().Add(time.Second)

	events, err := store.GetRange(ctx, before, after)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = store.GetRange(ctx, after, after.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(t.Context(), testBuildID, "E", nil, nil))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	events, err := reopened.GetByBuildID(t.Context(), testBuildID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListBuildsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := t.Context()
	em := NewEmitter(store)

	for _, id := range []string{"first", "second", "third"} {
		started, err := NewBuildStarted(id, BuildStartedData{Project: "fw", Sources: 2})
		require.NoError(t, err)
		require.NoError(t, em.EmitEvent(ctx, started))
	}

	all, err := store.ListBuilds(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].BuildID)
	assert.Equal(t, "first", all[2].BuildID)

	limited, err := store.ListBuilds(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "second", limited[1].BuildID)
}
