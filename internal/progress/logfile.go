package progress

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

// LogFile is an append-only UTF-8 build log. Write failures are logged at
// debug level and otherwise ignored; they never fail a build.
type LogFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenLogFile opens (creating if needed) path for appending.
func OpenLogFile(path string) (*LogFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	// #nosec G302 G304 -- build log is meant to be readable
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &LogFile{path: path, f: f}, nil
}

// Path returns the log location.
func (l *LogFile) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes line followed by a newline. A nil LogFile ignores the call.
func (l *LogFile) Append(line string) {
	if l == nil {
		return
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	if _, err := l.f.WriteString(line); err != nil {
		slog.Debug("Build log write failed", logfields.Path(l.path), logfields.Error(err))
	}
}

// Close closes the file. Further appends are ignored.
func (l *LogFile) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
