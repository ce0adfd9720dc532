package progress

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestConsoleSinkWritesStatusAndLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Build", "build.log")
	log, err := OpenLogFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var out bytes.Buffer
	sink := NewConsoleSink(&out, log)

	sink.Report(Event{Status: "[1/2] ok", Full: "[1/2] gcc -c a.c", Success: true})
	sink.Report(Event{Status: "Elf created", Full: "gcc -o MAIN.elf", Success: true, Repeat: true})
	sink.Report(Event{Status: "warning: unused", Success: false})
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got, want := out.String(), "[1/2] ok\nElf created\nwarning: unused\n"; got != want {
		t.Fatalf("console %q, want %q", got, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "[1/2] gcc -c a.c\ngcc -o MAIN.elf\nElf created\nwarning: unused\n"
	if string(data) != want {
		t.Fatalf("log %q, want %q", string(data), want)
	}
}

func TestLogFileAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.log")
	for _, line := range []string{"first", "second\n"} {
		l, err := OpenLogFile(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		l.Append(line)
		_ = l.Close()
		l.Append("ignored after close")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "first\nsecond\n" {
		t.Fatalf("unexpected log %q", string(data))
	}
}

func TestLogFileConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.log")
	l, err := OpenLogFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append("line")
		}()
	}
	wg.Wait()
	_ = l.Close()
	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "line\n"); n != 20 {
		t.Fatalf("expected 20 whole lines, got %d", n)
	}
}

func TestNilLogAndFuncSink(t *testing.T) {
	var l *LogFile
	l.Append("noop")
	if err := l.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}

	var got []Event
	Func(func(e Event) { got = append(got, e) }).Report(Event{Status: "x"})
	Discard.Report(Event{Status: "dropped"})
	if len(got) != 1 || got[0].Status != "x" {
		t.Fatalf("unexpected events %+v", got)
	}

	var out bytes.Buffer
	NewConsoleSink(&out, nil).Report(Event{Status: "no log", Repeat: true})
	if out.String() != "no log\n" {
		t.Fatalf("console %q", out.String())
	}
}
