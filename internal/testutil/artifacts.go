package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Artifacts asserts on the contents of a build directory.
type Artifacts struct {
	t   testing.TB
	dir string
}

// NewArtifacts returns assertions rooted at dir.
func NewArtifacts(t testing.TB, dir string) *Artifacts {
	return &Artifacts{t: t, dir: dir}
}

// Exist fails the test for every relative path that is missing.
func (a *Artifacts) Exist(paths ...string) *Artifacts {
	a.t.Helper()
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(a.dir, p)); err != nil {
			a.t.Errorf("expected build artifact %s: %v", p, err)
		}
	}
	return a
}

// Missing fails the test for every relative path that exists.
func (a *Artifacts) Missing(paths ...string) *Artifacts {
	a.t.Helper()
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(a.dir, p)); err == nil {
			a.t.Errorf("unexpected build artifact %s", p)
		}
	}
	return a
}

// Contains checks that the file at path contains want.
func (a *Artifacts) Contains(path, want string) *Artifacts {
	a.t.Helper()
	full := filepath.Join(a.dir, path)
	// #nosec G304 -- test helper, paths are controlled by test code
	content, err := os.ReadFile(full)
	if err != nil {
		a.t.Errorf("failed to read %s: %v", full, err)
		return a
	}
	if !strings.Contains(string(content), want) {
		a.t.Errorf("expected %s to contain %q\nActual content:\n%s", path, want, content)
	}
	return a
}

// MinFiles checks that the directory at path holds at least n regular files.
func (a *Artifacts) MinFiles(path string, n int) *Artifacts {
	a.t.Helper()
	entries, err := os.ReadDir(filepath.Join(a.dir, path))
	if err != nil {
		a.t.Errorf("failed to read directory %s: %v", path, err)
		return a
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			count++
		}
	}
	if count < n {
		a.t.Errorf("expected at least %d files in %s, found %d", n, path, count)
	}
	return a
}
