// Package toolchain turns a project model into cross-compiler command lines
// and the response files they reference.
package toolchain

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Toolchain locates the gcc and objcopy binaries.
type Toolchain struct {
	Dir    string // empty resolves binaries through PATH
	Prefix string // e.g. arm-none-eabi-
	Suffix string // ".exe" on Windows
}

// New returns a toolchain with the host's executable suffix.
func New(dir, prefix string) Toolchain {
	t := Toolchain{Dir: dir, Prefix: prefix}
	if runtime.GOOS == "windows" {
		t.Suffix = ".exe"
	}
	return t
}

func (t Toolchain) tool(name string) string {
	bin := t.Prefix + name + t.Suffix
	if t.Dir == "" {
		return bin
	}
	return filepath.Join(t.Dir, bin)
}

// GCC returns the compiler driver path.
func (t Toolchain) GCC() string { return t.tool("gcc") }

// Objcopy returns the objcopy path.
func (t Toolchain) Objcopy() string { return t.tool("objcopy") }

// Quote wraps s in double quotes when it contains a space, tab or quote,
// escaping embedded quotes with a backslash.
func Quote(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// Unit is one source file with the stem its object and rsp files are named after.
type Unit struct {
	Source string
	Stem   string // base name, suffixed when two sources share it
}

// Units assigns unique stems to sources, keeping their order.
func Units(sources []string) []Unit {
	seen := make(map[string]int, len(sources))
	units := make([]Unit, 0, len(sources))
	for _, src := range sources {
		base := filepath.Base(src)
		stem := base
		if n := seen[base]; n > 0 {
			stem = fmt.Sprintf("%s_%d", base, n+1)
		}
		seen[base]++
		units = append(units, Unit{Source: src, Stem: stem})
	}
	return units
}
