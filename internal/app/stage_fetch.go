package app

import (
	"context"
	"fmt"
	"log/slog"
)

// FetchStage implements the Stage interface for reporting upstream changes
type FetchStage struct{}

// NewFetchStage creates a new fetch stage instance
func NewFetchStage() *FetchStage {
	return &FetchStage{}
}

// Name returns the name of the stage
func (s *FetchStage) Name() ExecutionStage {
	return StageFetch
}

// Execute fetches the remote and records the upstream changes not yet in the
// working copy. Nothing is merged.
func (s *FetchStage) Execute(ctx context.Context, run *RepoRun) error {
	if run.DryRun {
		run.Console.PrintInfo(fmt.Sprintf("[%s] DRY RUN: Would fetch upstream changes", run.Repo.Name))
		return nil
	}

	changes, err := run.Connector.FetchChanges(ctx, run.WorkingCopy)
	if err != nil {
		return err
	}
	run.Result.Pending = changes.Changes

	if changes.IsEmpty() {
		run.Console.PrintSuccess(fmt.Sprintf("[%s] Up to date with upstream", run.Repo.Name))
	} else {
		summaries := make([]string, 0, len(changes.Changes))
		for _, change := range changes.Changes {
			summaries = append(summaries, change.Summary())
		}
		run.Console.PrintList(fmt.Sprintf("[%s] %d upstream change(s) on %s not yet merged:", run.Repo.Name, len(changes.Changes), changes.Ref), summaries, "")
	}
	slog.Info("Fetch stage completed successfully", "repository", run.Repo.Name, "ref", changes.Ref, "pending", len(changes.Changes))
	return nil
}
