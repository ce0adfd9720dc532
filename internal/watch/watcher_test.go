package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherRebuildsOnSourceChange(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.c")
	require.NoError(t, os.WriteFile(src, []byte("int main(void){return 0;}\n"), 0o600))

	var builds atomic.Int32
	rebuilt := make(chan struct{}, 4)
	w, err := New(Options{Dirs: []string{dir}, Debounce: 20 * time.Millisecond}, func(context.Context) int {
		builds.Add(1)
		rebuilt <- struct{}{}
		return 0
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan int, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-rebuilt:
	case <-time.After(5 * time.Second):
		t.Fatal("initial build did not run")
	}

	require.NoError(t, os.WriteFile(src, []byte("int main(void){return 1;}\n"), 0o600))
	select {
	case <-rebuilt:
	case <-time.After(5 * time.Second):
		t.Fatal("change did not trigger a rebuild")
	}

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, builds.Load(), int32(2))
}

func TestWatcherRelevance(t *testing.T) {
	dir := t.TempDir()
	buildDir := filepath.Join(dir, "Build")
	w, err := New(Options{Dirs: []string{dir}, Ignore: []string{buildDir}}, func(context.Context) int { return 0 })
	require.NoError(t, err)
	defer func() { _ = w.watcher.Close() }()

	cases := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"source write", fsnotify.Event{Name: filepath.Join(dir, "a.c"), Op: fsnotify.Write}, true},
		{"header create", fsnotify.Event{Name: filepath.Join(dir, "a.h"), Op: fsnotify.Create}, true},
		{"project file", fsnotify.Event{Name: filepath.Join(dir, "CMakeLists.txt"), Op: fsnotify.Write}, true},
		{"object output", fsnotify.Event{Name: filepath.Join(buildDir, "obj", "a.c.obj"), Op: fsnotify.Write}, false},
		{"build log", fsnotify.Event{Name: filepath.Join(buildDir, "build.txt"), Op: fsnotify.Write}, false},
		{"unrelated", fsnotify.Event{Name: filepath.Join(dir, "notes.md"), Op: fsnotify.Write}, false},
		{"chmod only", fsnotify.Event{Name: filepath.Join(dir, "a.c"), Op: fsnotify.Chmod}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, w.relevant(tc.event))
		})
	}
}

func TestNewFailsForMissingDirectory(t *testing.T) {
	_, err := New(Options{Dirs: []string{filepath.Join(t.TempDir(), "missing")}}, func(context.Context) int { return 0 })
	require.Error(t, err)
}

func TestNewLeavesCallerIgnoreListUntouched(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	ignore := []string{"Build"}
	w, err := New(Options{Dirs: []string{dir}, Ignore: ignore}, func(context.Context) int { return 0 })
	require.NoError(t, err)
	defer func() { _ = w.watcher.Close() }()

	assert.Equal(t, []string{"Build"}, ignore)
	assert.False(t, w.relevant(fsnotify.Event{Name: filepath.Join(dir, "Build", "gen.c"), Op: fsnotify.Write}))
}
