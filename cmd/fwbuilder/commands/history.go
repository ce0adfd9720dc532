package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int           `short:"n" help:"Number of builds to show (0 = all)" default:"10"`
	Since time.Duration `help:"Only show builds started within this long ago (e.g. 24h)"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root, "")
	if err != nil {
		return err
	}
	store, err := eventstore.NewSQLiteStore(cfg.History.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signalContext()
	defer stop()
	var builds []eventstore.BuildSummary
	if h.Since > 0 {
		now := time.Now()
		builds, err = eventstore.BuildsInRange(ctx, store, now.Add(-h.Since), now, h.Limit)
	} else {
		builds, err = store.ListBuilds(ctx, h.Limit)
	}
	if err != nil {
		return err
	}

	out := outWriter(g)
	if len(builds) == 0 {
		_, _ = fmt.Fprintln(out, "No builds recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "BUILD\tSTARTED\tSTATUS\tEXIT\tDURATION\tCOMMANDS\tFAILED COMMAND")
	for _, b := range builds {
		started := "-"
		if !b.StartedAt.IsZero() {
			started = b.StartedAt.Local().Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			shortID(b.BuildID), started, b.Status, b.ExitCode, b.Duration, b.Commands, b.FailedCommand)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
