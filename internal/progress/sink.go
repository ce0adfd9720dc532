// Package progress carries build progress from the scheduler to the console,
// the build log, or a caller-supplied UI.
package progress

import (
	"fmt"
	"io"
	"sync"
)

// Event is one progress report.
type Event struct {
	Status  string // short line shown on the console
	Full    string // verbose line recorded in the build log
	Success bool
	Repeat  bool // Status repeats information already reported; also log it
}

// Sink receives progress events. Implementations must be safe for concurrent
// use; compile continuations report from arbitrary workers.
type Sink interface {
	Report(Event)
}

// Func adapts a function to Sink.
type Func func(Event)

func (f Func) Report(e Event) {
	if f != nil {
		f(e)
	}
}

// Discard drops every event.
var Discard Sink = Func(nil)

// ConsoleSink prints status lines to a writer and appends full lines to a log.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
	log *LogFile
}

// NewConsoleSink writes to out; log may be nil.
func NewConsoleSink(out io.Writer, log *LogFile) *ConsoleSink {
	return &ConsoleSink{out: out, log: log}
}

func (c *ConsoleSink) Report(e Event) {
	c.mu.Lock()
	_, _ = fmt.Fprintln(c.out, e.Status)
	c.mu.Unlock()

	full := e.Full
	if full == "" {
		full = e.Status
	}
	c.log.Append(full)
	if e.Repeat {
		c.log.Append(e.Status)
	}
}
