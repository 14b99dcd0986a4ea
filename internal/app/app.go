package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	relerrors "relesia/internal/errors"
	"relesia/internal/parser"
	"relesia/internal/scm"
	"relesia/internal/ui"
	"relesia/pkg/workspace"
)

// DefaultConcurrency is how many repositories sync at once unless
// SyncOptions says otherwise.
const DefaultConcurrency = 4

// SyncOptions control a sync run.
type SyncOptions struct {
	DryRun      bool
	RetainState bool
	Concurrency int
	// Credentials are used for repositories whose manifest entry names no
	// credential variables.
	Credentials scm.Credentials
	Factory     *ConnectorFactory
	Console     *ui.Console
}

func (o *SyncOptions) applyDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Factory == nil {
		o.Factory = NewConnectorFactory(nil)
	}
	if o.Console == nil {
		o.Console = ui.NewConsole()
	}
}

// Sync brings every repository in the workspace manifest to its configured
// state: cloned, checked out at the configured revision, fetched, and with
// its overlay committed. Repositories sync concurrently and independently;
// one failing does not stop the others. Progress is recorded in a state file
// next to the manifest so a failed run resumes where each repository left
// off.
func Sync(ctx context.Context, workspacePath string, opts SyncOptions) (*SyncReport, error) {
	opts.applyDefaults()
	console := opts.Console
	slog.Info("Starting relesia sync workflow", "workspacePath", workspacePath, "dryRun", opts.DryRun)

	statePath := stateFilePath(workspacePath)
	state, err := loadState(statePath)
	if err != nil {
		return nil, err
	}

	if state == nil {
		runID := uuid.New().String()
		state = newState(statePath, workspacePath, runID)
		slog.Info("Starting new relesia sync", "runId", runID, "workspacePath", workspacePath)
	} else {
		console.PrintWarning(fmt.Sprintf("State file found, resuming run %s", state.RunID))
		slog.Info("Resuming relesia sync", "runId", state.RunID, "stateFile", statePath)
	}

	if opts.DryRun {
		console.PrintWarning("DRY RUN MODE - No actual changes will be made")
	}

	ws, err := parser.Parse(workspacePath)
	if err != nil {
		return nil, err
	}
	slog.Info("Workspace parsed successfully", "name", ws.Metadata.Name, "repositories", len(ws.Spec.Repositories))

	author := scm.Identity{Name: ws.Spec.Author.Name, Email: ws.Spec.Author.Email}
	results := make([]RepositoryResult, len(ws.Spec.Repositories))

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, repo := range ws.Spec.Repositories {
		g.Go(func() error {
			results[i] = syncRepository(ctx, state, repo, author, opts)
			return nil
		})
	}
	_ = g.Wait()

	report := &SyncReport{
		RunID:        state.RunID,
		Workspace:    ws.Metadata.Name,
		DryRun:       opts.DryRun,
		Repositories: results,
	}

	var errs []error
	for _, result := range results {
		if result.Err != nil {
			errs = append(errs, result.Err)
		}
	}
	if len(errs) > 0 {
		console.PrintWarning(fmt.Sprintf("%d of %d repositories failed; run sync again to resume", len(errs), len(results)))
		return report, errors.Join(errs...)
	}

	if !opts.DryRun {
		if opts.RetainState {
			if err := state.save(); err != nil {
				slog.Warn("Failed to save final state", "error", err)
			} else {
				slog.Info("State file retained for auditing", "file", statePath)
			}
		} else if err := removeStateFile(statePath); err != nil {
			slog.Warn("Failed to clean up state file", "error", err)
		}
	}

	if opts.DryRun {
		console.PrintSuccess("DRY RUN COMPLETED - All repositories simulated successfully")
	} else {
		console.PrintSuccess(fmt.Sprintf("Workspace '%s' synced: %d repositories", ws.Metadata.Name, len(results)))
	}
	slog.Info("relesia sync workflow completed successfully", "workspace", ws.Metadata.Name, "runId", state.RunID, "dryRun", opts.DryRun)
	return report, nil
}

// syncRepository runs every stage for one repository, skipping stages an
// earlier attempt of the same run already completed.
func syncRepository(ctx context.Context, state *ExecutionState, repo workspace.Repository, author scm.Identity, opts SyncOptions) RepositoryResult {
	result := RepositoryResult{Name: repo.Name, Path: repo.Destination}
	fail := func(stage ExecutionStage, err error) RepositoryResult {
		slog.Error("Repository sync failed", "repository", repo.Name, "stage", stage, "error", err)
		result.Err = fmt.Errorf("repository %s: %s stage failed: %w", repo.Name, stage, err)
		return result
	}

	conn, err := opts.Factory.GetConnector(repo.SCM)
	if err != nil {
		return fail(StageClone, err)
	}
	defer conn.Close()
	result.Kind = conn.Kind()

	creds := resolveCredentials(repo, opts.Credentials)
	sourceURL, err := resolveSourceURL(ctx, opts.Factory, repo, creds)
	if err != nil {
		return fail(StageClone, err)
	}

	run := &RepoRun{
		Repo:        repo,
		Author:      author,
		SourceURL:   sourceURL,
		Credentials: creds,
		Connector:   conn,
		DryRun:      opts.DryRun,
		Console:     opts.Console,
	}

	if state.shouldSkipStage(repo.Name, StageClone) {
		opts.Console.PrintInfo(fmt.Sprintf("[%s] Resuming from stage: %s", repo.Name, state.nextStage(repo.Name)))
	}

	clone := NewCloneStage()
	stages := []Stage{clone, NewCheckoutStage(), NewFetchStage(), NewOverlayStage()}
	for _, stage := range stages {
		if state.shouldSkipStage(repo.Name, stage.Name()) {
			opts.Console.PrintInfo(fmt.Sprintf("[%s] Stage %s (skipped - already completed)", repo.Name, stage.Name()))
			result.Skipped = append(result.Skipped, stage.Name())
			if stage.Name() == StageClone {
				if err := clone.attach(ctx, run); err != nil {
					return fail(StageClone, err)
				}
			}
			continue
		}

		if err := stage.Execute(ctx, run); err != nil {
			return fail(stage.Name(), err)
		}

		var revision scm.RevisionID
		if !opts.DryRun {
			revision, err = conn.CurrentRevision(ctx, run.WorkingCopy)
			if err != nil && !errors.Is(err, relerrors.ErrRevisionNotFound) {
				return fail(stage.Name(), err)
			}
		}
		if err := state.completeStage(repo.Name, stage.Name(), revision.String(), !opts.DryRun); err != nil {
			return fail(stage.Name(), err)
		}
	}

	if err := state.completeStage(repo.Name, StageCompleted, "", !opts.DryRun); err != nil {
		return fail(StageCompleted, err)
	}

	result.Pending = run.Result.Pending
	result.Committed = run.Result.Committed
	result.Revision = scm.RevisionID(state.revision(repo.Name))
	if run.WorkingCopy != nil {
		result.Path = run.WorkingCopy.Path
	}
	return result
}

// resolveCredentials reads the secrets a repository's manifest entry points
// at. Entries naming no credentials fall back to the process-wide ones.
func resolveCredentials(repo workspace.Repository, fallback scm.Credentials) scm.Credentials {
	ref := repo.Credentials
	if ref == (workspace.Credentials{}) {
		return fallback
	}

	lookup := func(name string) string {
		if name == "" {
			return ""
		}
		value, ok := os.LookupEnv(name)
		if !ok {
			slog.Warn("Credential environment variable is not set", "repository", repo.Name, "variable", name)
		}
		return value
	}

	return scm.Credentials{
		Username:      lookup(ref.UsernameEnv),
		Password:      lookup(ref.PasswordEnv),
		Token:         lookup(ref.TokenEnv),
		SSHKeyPath:    ref.SSHKeyPath,
		SSHPassphrase: lookup(ref.SSHPassphraseEnv),
	}
}

// resolveSourceURL returns the URL to clone, looking GitLab projects up
// through the API.
func resolveSourceURL(ctx context.Context, factory *ConnectorFactory, repo workspace.Repository, creds scm.Credentials) (string, error) {
	if repo.GitLab == nil {
		return repo.URL, nil
	}

	locator, err := factory.GetLocator(repo.GitLab.BaseURL, creds.Token)
	if err != nil {
		return "", err
	}
	return locator.CloneURL(ctx, repo.GitLab.Project, repo.GitLab.PreferSSH)
}
