package commands

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/build"
	"git.home.luguber.info/inful/fwbuilder/internal/project"
	"git.home.luguber.info/inful/fwbuilder/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Project  string        `arg:"" optional:"" help:"Project file (overrides project.file)" type:"path"`
	Debounce time.Duration `help:"Quiet period before rebuilding" default:"500ms"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, w.Project)
	if err != nil {
		return err
	}

	// Watch the project directory and every directory holding a source.
	dirs := []string{cfg.ProjectDir()}
	if _, model, err := project.Load(cfg.Project.File, cfg.Project.BaseDir); err == nil {
		for _, src := range model.Sources {
			dirs = append(dirs, filepath.Dir(src))
		}
		dirs = append(dirs, model.IncludeDirs...)
	} else {
		g.Logger.Warn("Watching the project directory only", "error", err)
	}

	watcher, err := watch.New(watch.Options{
		Dirs:     existingDirs(dirs),
		Ignore:   []string{cfg.Output.BuildDir},
		Debounce: w.Debounce,
		Logger:   g.Logger,
	}, func(ctx context.Context) int {
		rep, err := build.Execute(ctx, build.Request{Config: cfg, Verbose: root.Verbose, Console: outWriter(g), Logger: g.Logger})
		if err != nil {
			g.Logger.Error("Build could not start", "error", err)
			return build.ExitCodeFor(err)
		}
		return rep.ExitCode
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	g.Logger.Info("Watching for changes", "project", cfg.Project.File)
	watcher.Run(ctx)
	return nil
}

func existingDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			out = append(out, d)
		}
	}
	return out
}
