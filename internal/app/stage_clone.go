package app

import (
	"context"
	"fmt"
	"log/slog"
)

// CloneStage implements the Stage interface for materialising the working copy
type CloneStage struct{}

// NewCloneStage creates a new clone stage instance
func NewCloneStage() *CloneStage {
	return &CloneStage{}
}

// Name returns the name of the stage
func (s *CloneStage) Name() ExecutionStage {
	return StageClone
}

// Execute clones the repository, or reuses an existing clone of it at the
// destination.
func (s *CloneStage) Execute(ctx context.Context, run *RepoRun) error {
	if run.DryRun {
		run.Console.PrintInfo(fmt.Sprintf("[%s] DRY RUN: Would clone %s into %s", run.Repo.Name, run.SourceURL, run.Repo.Destination))
		return nil
	}

	wc, err := run.Connector.Clone(ctx, run.SourceURL, run.Repo.Destination, run.Credentials)
	if err != nil {
		return err
	}
	run.WorkingCopy = wc

	run.Console.PrintSuccess(fmt.Sprintf("[%s] Cloned %s into %s", run.Repo.Name, run.SourceURL, wc.Path))
	slog.Info("Clone stage completed successfully", "repository", run.Repo.Name, "path", wc.Path, "branch", wc.Branch)
	return nil
}

// attach reopens the working copy left by an earlier attempt whose clone
// stage already completed.
func (s *CloneStage) attach(ctx context.Context, run *RepoRun) error {
	wc, err := run.Connector.Open(ctx, run.Repo.Destination, run.Credentials)
	if err != nil {
		return err
	}
	run.WorkingCopy = wc
	return nil
}
