// Package watch rebuilds a project when its sources or description change.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/util/sets"
)

// DefaultDebounce coalesces editor save bursts into one rebuild.
const DefaultDebounce = 500 * time.Millisecond

// DefaultExtensions are the file suffixes that trigger a rebuild.
var DefaultExtensions = []string{".c", ".h", ".s", ".S", ".ld", ".txt", ".yaml", ".yml"}

// RebuildFunc runs one build. It is never called concurrently.
type RebuildFunc func(ctx context.Context) int

// Options configures a Watcher.
type Options struct {
	// Dirs are watched non-recursively.
	Dirs []string
	// Ignore lists directories whose events are dropped, typically the build output.
	Ignore     []string
	Extensions []string
	Debounce   time.Duration
	Logger     *slog.Logger
}

// Watcher triggers debounced rebuilds on file changes.
type Watcher struct {
	opts    Options
	exts    sets.Set[string]
	rebuild RebuildFunc
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// New creates a Watcher and registers every directory in opts.Dirs.
func New(opts Options, rebuild RebuildFunc) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.RuntimeError("failed to create file watcher").WithCause(err).Build()
	}

	seen := sets.New[string]()
	for _, dir := range opts.Dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			_ = fw.Close()
			return nil, errors.FileSystemError("failed to resolve watch directory").
				WithCause(err).WithContext("dir", dir).Build()
		}
		if !seen.Add(abs) {
			continue
		}
		if err := fw.Add(abs); err != nil {
			_ = fw.Close()
			return nil, errors.FileSystemError("failed to watch directory").
				WithCause(err).WithContext("dir", abs).Build()
		}
	}
	opts.Ignore = slices.Clone(opts.Ignore)
	for i, dir := range opts.Ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			opts.Ignore[i] = abs
		}
	}

	return &Watcher{
		opts:    opts,
		exts:    sets.New(opts.Extensions...),
		rebuild: rebuild,
		watcher: fw,
		logger:  logger,
	}, nil
}

// Run builds once and then rebuilds after every debounced change until ctx
// is cancelled. It returns the exit code of the last build.
func (w *Watcher) Run(ctx context.Context) int {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Error("Error closing file watcher", logfields.Error(err))
		}
	}()

	last := w.rebuild(ctx)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return last
		case event, ok := <-w.watcher.Events:
			if !ok {
				return last
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("Change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			w.logger.Info("Rebuilding after change")
			last = w.rebuild(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return last
			}
			w.logger.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
		return false
	}
	for _, dir := range w.opts.Ignore {
		if event.Name == dir || strings.HasPrefix(event.Name, dir+string(filepath.Separator)) {
			return false
		}
	}
	return w.exts.Has(filepath.Ext(event.Name))
}
