// Package testutil holds fixtures shared by the build and CLI tests: a fake
// cross toolchain, project files and build directory assertions.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FailingSource is the source name the fake compiler rejects.
const FailingSource = "bad.c"

// FailingExitCode is the exit status of the fake compiler on FailingSource.
const FailingExitCode = 7

const fakeGCC = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  case "$a" in
    *bad.c) echo "bad.c:1:1: error: expected ';'" >&2; exit 7 ;;
  esac
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
if [ -n "$out" ]; then : > "$out"; fi
exit 0
`

const fakeObjcopy = `#!/bin/sh
for a in "$@"; do last="$a"; done
: > "$last"
`

// FakeToolchain writes arm-none-eabi-gcc and arm-none-eabi-objcopy stand-ins
// into dir and returns dir. gcc creates its -o output and exits with
// FailingExitCode on any FailingSource argument; objcopy creates its last
// argument. Both need a POSIX sh.
func FakeToolchain(t testing.TB, dir string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("create toolchain dir: %v", err)
	}
	for name, script := range map[string]string{
		"arm-none-eabi-gcc":     fakeGCC,
		"arm-none-eabi-objcopy": fakeObjcopy,
	} {
		// #nosec G306 -- the stand-ins must be executable
		if err := os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// WriteProject writes CMakeLists.txt for project "blinky" into dir, with
// each source created under src/. It returns the project file path.
func WriteProject(t testing.TB, dir string, sources ...string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o750); err != nil {
		t.Fatalf("create src dir: %v", err)
	}
	var b strings.Builder
	b.WriteString("project(blinky C ASM)\n")
	b.WriteString("set(CMAKE_C_FLAGS \"-mcpu=cortex-m3 -mthumb\")\n")
	b.WriteString("set(CMAKE_EXE_LINKER_FLAGS \"-T ${CMAKE_SOURCE_DIR}/flash.ld -Wl,--gc-sections\")\n")
	b.WriteString("set(SRC_FILES\n")
	for _, s := range sources {
		if err := os.WriteFile(filepath.Join(dir, "src", s), []byte("int x;\n"), 0o600); err != nil {
			t.Fatalf("write source %s: %v", s, err)
		}
		b.WriteString("    src/" + s + "\n")
	}
	b.WriteString(")\ninclude_directories(inc)\n")
	path := filepath.Join(dir, "CMakeLists.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write project file: %v", err)
	}
	return path
}
