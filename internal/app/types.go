package app

import (
	"context"

	"relesia/internal/scm"
	"relesia/internal/ui"
	"relesia/pkg/workspace"
)

// Stage represents a single stage in syncing one repository.
// Each stage implements this interface to provide a name and execution logic.
type Stage interface {
	Name() ExecutionStage
	Execute(ctx context.Context, run *RepoRun) error
}

// RepoRun carries one repository through the sync stages. Each repository
// gets its own RepoRun and connector, so stages never share them.
type RepoRun struct {
	Repo        workspace.Repository
	Author      scm.Identity
	SourceURL   string
	Credentials scm.Credentials
	Connector   scm.Connector
	WorkingCopy *scm.WorkingCopy
	DryRun      bool
	Console     *ui.Console

	Result RepositoryResult
}

// RepositoryResult summarises what a sync did to one repository.
type RepositoryResult struct {
	Name      string
	Kind      scm.BackendKind
	Path      string
	Revision  scm.RevisionID
	Pending   []scm.Change
	Committed scm.RevisionID
	Skipped   []ExecutionStage
	Err       error
}

// SyncReport is the outcome of a sync run, one result per repository in
// manifest order.
type SyncReport struct {
	RunID        string
	Workspace    string
	DryRun       bool
	Repositories []RepositoryResult
}
