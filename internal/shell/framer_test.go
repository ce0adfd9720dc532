package shell

import (
	"strings"
	"testing"
)

func TestFramerUnfencedRoundTrip(t *testing.T) {
	f := NewFramer(false)
	frames := f.Feed(Stdout, []byte("hello\n__END__ 0\n"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Stdout != "hello" || frames[0].ExitCode != 0 || frames[0].Stderr != "" {
		t.Fatalf("unexpected frame %+v", frames[0])
	}
	if f.Pending() {
		t.Fatalf("expected buffers consumed")
	}
}

func TestFramerPartialYieldsNothing(t *testing.T) {
	f := NewFramer(false)
	if frames := f.Feed(Stdout, []byte("partial")); len(frames) != 0 {
		t.Fatalf("expected no frame, got %+v", frames)
	}
	if !f.Pending() {
		t.Fatalf("expected partial data retained")
	}
	// Status split across reads must not be parsed early.
	if frames := f.Feed(Stdout, []byte("\n__END__ 1")); len(frames) != 0 {
		t.Fatalf("expected no frame before newline, got %+v", frames)
	}
	frames := f.Feed(Stdout, []byte("2\r\n"))
	if len(frames) != 1 || frames[0].ExitCode != 12 || frames[0].Stdout != "partial" {
		t.Fatalf("unexpected frames %+v", frames)
	}
}

func TestFramerExitCodeParsing(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"__END__ 0\n", 0},
		{"__END__ -1\n", -1},
		{"__END__: 7\n", 7},
		{"__END__  255\r\n", 255},
		{"__END__ \n", -1},
		{"__END__ abc\n", -1},
		{"__END__ --\n", -1},
	}
	for _, c := range cases {
		f := NewFramer(false)
		frames := f.Feed(Stdout, []byte(c.in))
		if len(frames) != 1 {
			t.Fatalf("%q: expected a frame", c.in)
		}
		if frames[0].ExitCode != c.want {
			t.Errorf("%q: exit code %d, want %d", c.in, frames[0].ExitCode, c.want)
		}
	}
}

func TestFramerStderrUnfenced(t *testing.T) {
	f := NewFramer(false)
	f.Feed(Stderr, []byte("warning: x\n"))
	frames := f.Feed(Stdout, []byte("out\n__END__ 0\n"))
	if len(frames) != 1 || frames[0].Stderr != "warning: x\n" {
		t.Fatalf("unexpected frames %+v", frames)
	}
	f.Feed(Stdout, []byte("__END__ 0\n"))
	if f.Pending() {
		t.Fatalf("stderr should be cleared per frame")
	}
}

func TestFramerFencedWaitsForStderr(t *testing.T) {
	f := NewFramer(true)
	if frames := f.Feed(Stdout, []byte("__END__ 3\n")); len(frames) != 0 {
		t.Fatalf("fenced frame must wait for stderr fence")
	}
	f.Feed(Stderr, []byte("err one\n"))
	frames := f.Feed(Stderr, []byte(Fence+"\nnext command stderr"))
	if len(frames) != 1 {
		t.Fatalf("expected frame once fence arrives, got %d", len(frames))
	}
	if frames[0].Stderr != "err one\n" || frames[0].ExitCode != 3 || frames[0].Stdout != "" {
		t.Fatalf("unexpected frame %+v", frames[0])
	}
	// Stderr after the fence belongs to the next frame.
	frames = f.Feed(Stdout, []byte("__END__ 0\n"))
	if len(frames) != 0 {
		t.Fatalf("second frame still needs its fence")
	}
	frames = f.Feed(Stderr, []byte("\n"+Fence+"\n"))
	if len(frames) != 1 || frames[0].Stderr != "next command stderr\n" {
		t.Fatalf("unexpected second frame %+v", frames)
	}
}

func TestFramerMultipleFramesInOneRead(t *testing.T) {
	f := NewFramer(false)
	frames := f.Feed(Stdout, []byte("a\n__END__ 0\nb\n__END__ 2\nc"))
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Stdout != "a" || frames[1].Stdout != "b" || frames[1].ExitCode != 2 {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if !f.Pending() {
		t.Fatalf("trailing partial output should remain")
	}
}

func TestDialectByName(t *testing.T) {
	for _, name := range []string{"posix", "SH", "powershell", "pwsh"} {
		if _, err := DialectByName(name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if _, err := DialectByName("cmd"); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
	ps := PowerShell().Frame(`"C:\tools\gcc.exe" -v`)
	if want := `& "C:\tools\gcc.exe" -v`; !strings.Contains(ps, want) {
		t.Fatalf("powershell frame missing call operator: %s", ps)
	}
}
