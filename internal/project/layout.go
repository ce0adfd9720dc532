package project

import (
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// Layout holds the directories a build writes to.
type Layout struct {
	BaseDir    string
	ProjectDir string
	BuildDir   string
	RspDir     string
	ObjDir     string
}

// NewLayout places the rsp and obj directories under buildDir.
func NewLayout(baseDir, projectDir, buildDir string) Layout {
	return Layout{
		BaseDir:    baseDir,
		ProjectDir: projectDir,
		BuildDir:   buildDir,
		RspDir:     filepath.Join(buildDir, "rsp"),
		ObjDir:     filepath.Join(buildDir, "obj"),
	}
}

// Prepare creates the build directory, wiping it first when clean is set.
// The rsp and obj directories are always recreated empty.
func (l Layout) Prepare(clean bool) error {
	if clean {
		if err := os.RemoveAll(l.BuildDir); err != nil {
			return l.fsErr("failed to clean build directory", l.BuildDir, err)
		}
	}
	if err := os.MkdirAll(l.BuildDir, 0o750); err != nil {
		return l.fsErr("failed to create build directory", l.BuildDir, err)
	}
	for _, dir := range []string{l.RspDir, l.ObjDir} {
		if err := os.RemoveAll(dir); err != nil {
			return l.fsErr("failed to reset directory", dir, err)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return l.fsErr("failed to create directory", dir, err)
		}
	}
	return nil
}

// Artifact returns the path of an output file in the build directory.
func (l Layout) Artifact(name string) string {
	return filepath.Join(l.BuildDir, name)
}

func (l Layout) fsErr(msg, path string, err error) error {
	return errors.FileSystemError(msg).WithCause(err).WithContext("path", path).Build()
}
