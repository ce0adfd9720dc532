package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/project"
)

// RspWriter writes response files in the toolchain's legacy code page: one
// flag or quoted path per line. Paths use forward slashes because gcc treats
// backslashes in response files as escapes.
type RspWriter struct {
	model *project.Model
	dir   string
	enc   encoding.Encoding
}

// LookupEncoding resolves a code page name such as "windows-1251" or "cp866".
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "windows-1251", "cp1251":
		return charmap.Windows1251, nil
	case "cp866", "ibm866":
		return charmap.CodePage866, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("unknown rsp encoding %q", name)).WithCause(err).Build()
	}
	return enc, nil
}

// NewRspWriter writes into dir using the named encoding.
func NewRspWriter(model *project.Model, dir, encodingName string) (*RspWriter, error) {
	enc, err := LookupEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &RspWriter{model: model, dir: dir, enc: enc}, nil
}

// WriteCompile writes <stem>.obj_compile.rsp with the compile flags and include directories.
func (w *RspWriter) WriteCompile(u Unit) (string, error) {
	lines := make([]string, 0, len(w.model.CompileFlags)+len(w.model.IncludeDirs))
	lines = append(lines, w.model.CompileFlags...)
	for _, d := range w.model.IncludeDirs {
		lines = append(lines, Quote("-I"+filepath.ToSlash(d)))
	}
	return w.write(u.Stem+".obj_compile.rsp", lines)
}

// WriteLink writes link.rsp: linker scripts, objects, assembler flags, link flags.
func (w *RspWriter) WriteLink(objects []string) (string, error) {
	var lines []string
	for _, s := range w.model.LinkScripts {
		lines = append(lines, "-Wl,-T "+Quote(filepath.ToSlash(s)))
	}
	for _, o := range objects {
		lines = append(lines, Quote(filepath.ToSlash(o)))
	}
	lines = append(lines, w.model.AsmFlags...)
	lines = append(lines, w.model.LinkFlags...)
	return w.write("link.rsp", lines)
}

func (w *RspWriter) write(name string, lines []string) (string, error) {
	path := filepath.Join(w.dir, name)
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	encoded, err := w.enc.NewEncoder().String(b.String())
	if err != nil {
		return "", errors.ToolchainError("response file content not representable in rsp encoding").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	// #nosec G306 -- response files hold compiler flags only
	if err := os.WriteFile(path, []byte(encoded), 0o644); err != nil {
		return "", errors.FileSystemError("cannot create response file").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	return path, nil
}
