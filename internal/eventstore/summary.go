package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// BuildSummary is a read model of one build folded from its events.
type BuildSummary struct {
	BuildID       string        `json:"build_id"`
	Project       string        `json:"project,omitempty"`
	Status        string        `json:"status"`
	State         string        `json:"state,omitempty"`
	ExitCode      int           `json:"exit_code"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	Sources       int           `json:"sources"`
	Commands      int           `json:"commands"`
	FailedCommand string        `json:"failed_command,omitempty"`
}

// Summarize folds a build's events, in order, into a summary. Events whose
// payload cannot be decoded are skipped.
func Summarize(buildID string, events []Event) BuildSummary {
	s := BuildSummary{BuildID: buildID, Status: StatusRunning}
	for _, e := range events {
		switch e.Type() {
		case TypeBuildStarted:
			var d BuildStartedData
			if !decode(e, &d) {
				continue
			}
			s.StartedAt = e.Timestamp()
			s.Project = d.Project
			s.Sources = d.Sources
		case TypeCommandCompleted:
			s.Commands++
		case TypeBuildFinished:
			var d BuildFinishedData
			if !decode(e, &d) {
				continue
			}
			ts := e.Timestamp()
			s.FinishedAt = &ts
			s.ExitCode = d.ExitCode
			s.State = d.State
			s.FailedCommand = d.FailedCommand
			s.Duration = time.Duration(d.DurationMS) * time.Millisecond
			if d.ExitCode == 0 {
				s.Status = StatusSucceeded
			} else {
				s.Status = StatusFailed
			}
		}
	}
	return s
}

func decode(e Event, v any) bool {
	if err := json.Unmarshal(e.Payload(), v); err != nil {
		slog.Debug("Skipping undecodable event", "type", e.Type(), "build_id", e.BuildID(), "error", err)
		return false
	}
	return true
}

// BuildsInRange summarizes the builds that started between start and end,
// newest first. Builds that started earlier are left out even when some of
// their events fall in the range. limit <= 0 returns every such build.
func BuildsInRange(ctx context.Context, store Store, start, end time.Time, limit int) ([]BuildSummary, error) {
	events, err := store.GetRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	var ids []string
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type() != TypeBuildStarted {
			continue
		}
		if id := events[i].BuildID(); !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
		if limit > 0 && len(ids) == limit {
			break
		}
	}

	summaries := make([]BuildSummary, 0, len(ids))
	for _, id := range ids {
		all, err := store.GetByBuildID(ctx, id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, Summarize(id, all))
	}
	return summaries, nil
}
