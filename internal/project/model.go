package project

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

const (
	baseDirVar   = "${BASE_DIR}"
	sourceDirVar = "${CMAKE_SOURCE_DIR}"
)

// Model is the build-relevant content of a project file.
type Model struct {
	Name         string              `json:"name"`
	Projects     []string            `json:"projects"`
	Sets         map[string][]string `json:"sets"`
	Targets      map[string][]string `json:"targets"`
	BaseDir      string              `json:"base_dir"`
	ProjectDir   string              `json:"project_dir"`
	CompileFlags []string            `json:"compile_flags"`
	AsmFlags     []string            `json:"asm_flags"`
	LinkFlags    []string            `json:"link_flags"`
	LinkScripts  []string            `json:"link_scripts"`
	IncludeDirs  []string            `json:"include_dirs"`
	Sources      []string            `json:"sources"`
}

// BuildModel interprets ast. projectDir is the directory holding the project
// file and stands in for ${CMAKE_SOURCE_DIR}; baseDir stands in for
// ${BASE_DIR} until a set(BASE_DIR ...) replaces it. Relative source and
// include paths are resolved against projectDir.
func BuildModel(ast *AST, projectDir, baseDir string) *Model {
	m := &Model{
		Sets:       map[string][]string{},
		Targets:    map[string][]string{},
		BaseDir:    baseDir,
		ProjectDir: projectDir,
	}
	for _, c := range ast.Commands {
		switch c.Name {
		case "project":
			if len(c.Args) > 0 {
				m.Projects = append(m.Projects, m.expand(c.Args[0]))
				if m.Name == "" {
					m.Name = c.Args[0]
				}
			}
		case "set":
			if len(c.Args) > 1 {
				m.applySet(c.Args[0], c.Args[1:])
			}
		case "add_executable", "add_library":
			if len(c.Args) > 1 {
				m.Targets[c.Args[0]] = append([]string(nil), c.Args[1:]...)
			}
		case "include_directories":
			for _, d := range c.Args {
				m.IncludeDirs = append(m.IncludeDirs, m.path(d))
			}
		}
	}
	return m
}

func (m *Model) applySet(key string, values []string) {
	m.Sets[key] = append([]string(nil), values...)
	switch {
	case key == "BASE_DIR":
		m.BaseDir = m.expand(values[0])
	case key == "CMAKE_C_FLAGS":
		m.CompileFlags = append(m.CompileFlags, fields(values)...)
	case key == "CMAKE_ASM_FLAGS":
		m.AsmFlags = append(m.AsmFlags, fields(values)...)
	case key == "CMAKE_EXE_LINKER_FLAGS":
		m.applyLinkerFlags(fields(values))
	case strings.HasPrefix(key, "SRC"):
		for _, v := range values {
			m.Sources = append(m.Sources, m.path(v))
		}
	}
}

// applyLinkerFlags lifts `-T script` (or `-Tscript`) into LinkScripts and
// keeps the remaining tokens as plain link flags.
func (m *Model) applyLinkerFlags(tokens []string) {
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		var script string
		switch {
		case tok == "-T" && i+1 < len(tokens):
			i++
			script = tokens[i]
		case strings.HasPrefix(tok, "-T") && len(tok) > 2:
			script = tok[2:]
		default:
			m.LinkFlags = append(m.LinkFlags, tok)
			continue
		}
		m.LinkScripts = append(m.LinkScripts, m.path(strings.Trim(script, `"'`)))
	}
}

func (m *Model) expand(s string) string {
	s = strings.ReplaceAll(s, baseDirVar, m.BaseDir)
	return strings.ReplaceAll(s, sourceDirVar, m.ProjectDir)
}

func (m *Model) path(p string) string {
	p = filepath.FromSlash(m.expand(p))
	if filepath.IsAbs(p) || m.ProjectDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(m.ProjectDir, p)
}

func fields(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Fields(v)...)
	}
	return out
}

// Validate reports models that cannot produce a build.
func (m *Model) Validate() error {
	if len(m.Sources) == 0 {
		return errors.ValidationError("project declares no sources (expected set(SRC ...))").Build()
	}
	return nil
}

// Load parses the project file at path and builds its model.
func Load(path, baseDir string) (*AST, *Model, error) {
	ast, err := ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	projectDir := filepath.Dir(path)
	if baseDir == "" {
		baseDir = projectDir
	}
	return ast, BuildModel(ast, projectDir, baseDir), nil
}
