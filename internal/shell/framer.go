package shell

import (
	"bytes"
	"strconv"
)

// Stream identifies which output pipe a chunk came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Frame is one command's captured output.
type Frame struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Framer splits the shell's two output streams into frames. It is not safe
// for concurrent use; a single goroutine owns it.
//
// A frame completes when the stdout buffer holds the sentinel followed by a
// full line. In fenced mode the stderr buffer must also hold the fence line,
// and stderr is attributed up to the fence. Unfenced, whatever stderr
// arrived before the sentinel belongs to the frame.
type Framer struct {
	fenced bool
	out    []byte
	err    []byte
}

// NewFramer returns a framer; fenced selects whether stderr waits for the fence line.
func NewFramer(fenced bool) *Framer {
	return &Framer{fenced: fenced}
}

var (
	sentinel = []byte(Sentinel)
	fence    = []byte(Fence)
)

// Feed appends data to the stream's buffer and returns every frame it completes.
func (f *Framer) Feed(stream Stream, data []byte) []Frame {
	if stream == Stderr {
		f.err = append(f.err, data...)
	} else {
		f.out = append(f.out, data...)
	}
	var frames []Frame
	for {
		fr, ok := f.next()
		if !ok {
			return frames
		}
		frames = append(frames, fr)
	}
}

// Pending reports whether either buffer holds unframed bytes.
func (f *Framer) Pending() bool {
	return len(f.out) > 0 || len(f.err) > 0
}

func (f *Framer) next() (Frame, bool) {
	idx := bytes.Index(f.out, sentinel)
	if idx < 0 {
		return Frame{}, false
	}
	code, lineEnd, ok := parseStatusLine(f.out, idx+len(sentinel))
	if !ok {
		return Frame{}, false
	}

	var stderr []byte
	if f.fenced {
		fidx := bytes.Index(f.err, fence)
		if fidx < 0 {
			return Frame{}, false
		}
		nl := bytes.IndexByte(f.err[fidx:], '\n')
		if nl < 0 {
			return Frame{}, false
		}
		stderr = f.err[:fidx]
		f.err = f.err[fidx+nl+1:]
	} else {
		stderr = f.err
		f.err = nil
	}

	fr := Frame{
		Stdout:   string(bytes.TrimRight(f.out[:idx], "\r\n")),
		Stderr:   string(stderr),
		ExitCode: code,
	}
	f.out = f.out[lineEnd:]
	if len(f.out) == 0 {
		f.out = nil
	}
	return fr, true
}

// parseStatusLine reads the exit status after the sentinel: spaces and colons
// are skipped, then a run of '-' and digits is taken. It needs the terminating
// newline so a status split across reads is never parsed early. A missing or
// unparseable status yields -1.
func parseStatusLine(buf []byte, start int) (code, lineEnd int, ok bool) {
	nl := bytes.IndexByte(buf[start:], '\n')
	if nl < 0 {
		return 0, 0, false
	}
	line := buf[start : start+nl]
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == ':') {
		i++
	}
	j := i
	for j < len(line) && (line[j] == '-' || (line[j] >= '0' && line[j] <= '9')) {
		j++
	}
	code, err := strconv.Atoi(string(line[i:j]))
	if err != nil {
		code = -1
	}
	return code, start + nl + 1, true
}
