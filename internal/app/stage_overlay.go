package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	relerrors "relesia/internal/errors"
	"relesia/internal/overlay"
)

// OverlayStage implements the Stage interface for applying and committing a
// template overlay
type OverlayStage struct{}

// NewOverlayStage creates a new overlay stage instance
func NewOverlayStage() *OverlayStage {
	return &OverlayStage{}
}

// Name returns the name of the stage
func (s *OverlayStage) Name() ExecutionStage {
	return StageOverlay
}

// Execute copies the overlay into the working copy, stages the written files
// and commits them. An overlay that changes nothing is not an error.
func (s *OverlayStage) Execute(ctx context.Context, run *RepoRun) error {
	cfg := run.Repo.Overlay
	if cfg == nil {
		return nil
	}

	if run.DryRun {
		files, err := overlay.Plan(cfg.Source)
		if err != nil {
			return err
		}
		run.Console.PrintList(fmt.Sprintf("[%s] DRY RUN: Would write and commit %q:", run.Repo.Name, cfg.Message), files, "(no files)")
		return nil
	}

	files, err := overlay.Apply(cfg.Source, run.WorkingCopy.Path)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		run.Console.PrintInfo(fmt.Sprintf("[%s] Overlay %s is empty, nothing to commit", run.Repo.Name, cfg.Source))
		return nil
	}

	if err := run.Connector.Stage(ctx, run.WorkingCopy, files...); err != nil {
		return err
	}

	revision, err := run.Connector.Commit(ctx, run.WorkingCopy, cfg.Message, run.Author)
	if errors.Is(err, relerrors.ErrNothingToCommit) {
		run.Console.PrintInfo(fmt.Sprintf("[%s] Overlay already applied, nothing to commit", run.Repo.Name))
		slog.Info("Overlay produced no changes", "repository", run.Repo.Name)
		return nil
	}
	if err != nil {
		return err
	}
	run.Result.Committed = revision

	run.Console.PrintSuccess(fmt.Sprintf("[%s] Committed overlay as %s", run.Repo.Name, revision.Short()))
	slog.Info("Overlay stage completed successfully", "repository", run.Repo.Name, "files", len(files), "revision", revision.String())
	return nil
}
