package commands

import (
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/project"
	"git.home.luguber.info/inful/fwbuilder/internal/toolchain"
)

// ParseCmd implements the 'parse' command.
type ParseCmd struct {
	Project  string `arg:"" optional:"" help:"Project file (overrides project.file)" type:"path"`
	Commands bool   `help:"Also print every parsed command with its line range"`
}

type parsedCommand struct {
	Name  string   `yaml:"name"`
	Lines [2]int   `yaml:"lines,flow"`
	Args  []string `yaml:"args,omitempty"`
}

type parseOutput struct {
	Project      string          `yaml:"project"`
	ProjectDir   string          `yaml:"project_dir"`
	BaseDir      string          `yaml:"base_dir"`
	Sources      []string        `yaml:"sources"`
	Objects      []string        `yaml:"objects"`
	IncludeDirs  []string        `yaml:"include_directories,omitempty"`
	CompileFlags []string        `yaml:"compile_flags,omitempty"`
	AsmFlags     []string        `yaml:"asm_flags,omitempty"`
	LinkFlags    []string        `yaml:"link_flags,omitempty"`
	LinkScripts  []string        `yaml:"link_scripts,omitempty"`
	Commands     []parsedCommand `yaml:"commands,omitempty"`
}

func (p *ParseCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, p.Project)
	if err != nil {
		return err
	}
	ast, model, err := project.Load(cfg.Project.File, cfg.Project.BaseDir)
	if err != nil {
		return err
	}

	out := parseOutput{
		Project:      model.Name,
		ProjectDir:   model.ProjectDir,
		BaseDir:      model.BaseDir,
		Sources:      model.Sources,
		IncludeDirs:  model.IncludeDirs,
		CompileFlags: model.CompileFlags,
		AsmFlags:     model.AsmFlags,
		LinkFlags:    model.LinkFlags,
		LinkScripts:  model.LinkScripts,
	}
	for _, u := range toolchain.Units(model.Sources) {
		out.Objects = append(out.Objects, filepath.Join("obj", u.Stem+".obj"))
	}
	if p.Commands {
		for _, c := range ast.Commands {
			out.Commands = append(out.Commands, parsedCommand{Name: c.Name, Lines: [2]int{c.LineStart, c.LineEnd}, Args: c.Args})
		}
	}

	enc := yaml.NewEncoder(outWriter(g))
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to encode parse output").Build()
	}
	if err := enc.Close(); err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to encode parse output").Build()
	}
	return model.Validate()
}
