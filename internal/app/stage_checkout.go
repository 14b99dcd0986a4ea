package app

import (
	"context"
	"fmt"
	"log/slog"
)

// CheckoutStage implements the Stage interface for pinning the working copy
// to the manifest's revision
type CheckoutStage struct{}

// NewCheckoutStage creates a new checkout stage instance
func NewCheckoutStage() *CheckoutStage {
	return &CheckoutStage{}
}

// Name returns the name of the stage
func (s *CheckoutStage) Name() ExecutionStage {
	return StageCheckout
}

// Execute checks out the configured revision. Without one the clone stays on
// the remote's default branch.
func (s *CheckoutStage) Execute(ctx context.Context, run *RepoRun) error {
	revision := run.Repo.Revision
	if revision == "" {
		run.Console.PrintInfo(fmt.Sprintf("[%s] No revision configured, staying on the default branch", run.Repo.Name))
		return nil
	}

	if run.DryRun {
		run.Console.PrintInfo(fmt.Sprintf("[%s] DRY RUN: Would check out %s", run.Repo.Name, revision))
		return nil
	}

	if err := run.Connector.Checkout(ctx, run.WorkingCopy, revision); err != nil {
		return err
	}

	run.Console.PrintSuccess(fmt.Sprintf("[%s] Checked out %s", run.Repo.Name, revision))
	slog.Info("Checkout stage completed successfully", "repository", run.Repo.Name, "revision", revision)
	return nil
}
