package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	relerrors "relesia/internal/errors"
)

// ExecutionStage represents the stages of syncing one repository.
type ExecutionStage string

const (
	StageClone     ExecutionStage = "clone"
	StageCheckout  ExecutionStage = "checkout"
	StageFetch     ExecutionStage = "fetch"
	StageOverlay   ExecutionStage = "overlay"
	StageCompleted ExecutionStage = "completed"
)

// stageOrder is the order stages run in for every repository.
var stageOrder = []ExecutionStage{StageClone, StageCheckout, StageFetch, StageOverlay, StageCompleted}

func stageIndex(stage ExecutionStage) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// RepositoryState is the progress of one repository within a run.
type RepositoryState struct {
	LastSuccessfulStage ExecutionStage `json:"last_successful_stage"`
	Revision            string         `json:"revision,omitempty"`
}

// ExecutionState represents the state of a relesia sync run. Repositories
// finish stages concurrently, so updates go through the state's methods.
type ExecutionState struct {
	SchemaVersion string                      `json:"schema_version"`
	RunID         string                      `json:"run_id"`
	WorkspacePath string                      `json:"workspace_path"`
	CreatedAt     time.Time                   `json:"created_at"`
	LastUpdatedAt time.Time                   `json:"last_updated_at"`
	Repositories  map[string]*RepositoryState `json:"repositories"`

	mu   sync.Mutex
	path string
}

const (
	StateFileName      = ".relesia.state.json"
	StateSchemaVersion = "1.0"
)

// stateFilePath returns where the state file for a manifest lives: next to
// the manifest, so runs from different directories share it.
func stateFilePath(workspacePath string) string {
	return filepath.Join(filepath.Dir(workspacePath), StateFileName)
}

// loadState attempts to load the execution state from path.
// Returns nil if the file doesn't exist (fresh start).
func loadState(path string) (*ExecutionState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, relerrors.NewFileSystemError(
			"Failed to load sync state",
			fmt.Sprintf("the state file %s could not be read", path),
			"",
			fmt.Errorf("failed to read state file: %w", err))
	}

	var state ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, relerrors.NewFileSystemError(
			"Failed to load sync state",
			fmt.Sprintf("the state file %s is corrupt", path),
			"Delete the state file to start a fresh run",
			fmt.Errorf("failed to parse state file: %w", err))
	}
	if state.Repositories == nil {
		state.Repositories = map[string]*RepositoryState{}
	}
	state.path = path
	return &state, nil
}

// newState creates a new execution state for a fresh run.
func newState(path, workspacePath, runID string) *ExecutionState {
	now := time.Now()
	return &ExecutionState{
		SchemaVersion: StateSchemaVersion,
		RunID:         runID,
		WorkspacePath: workspacePath,
		CreatedAt:     now,
		LastUpdatedAt: now,
		Repositories:  map[string]*RepositoryState{},
		path:          path,
	}
}

// shouldSkipStage reports whether repo already completed stage in an earlier
// attempt of this run.
func (s *ExecutionState) shouldSkipStage(repo string, stage ExecutionStage) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.Repositories[repo]
	if !ok || rs.LastSuccessfulStage == "" {
		return false
	}
	return stageIndex(stage) <= stageIndex(rs.LastSuccessfulStage)
}

// nextStage returns the stage repo resumes from.
func (s *ExecutionState) nextStage(repo string) ExecutionStage {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.Repositories[repo]
	if !ok || rs.LastSuccessfulStage == "" {
		return stageOrder[0]
	}
	i := stageIndex(rs.LastSuccessfulStage)
	if i < 0 || i+1 >= len(stageOrder) {
		return StageCompleted
	}
	return stageOrder[i+1]
}

// revision returns the last revision recorded for repo.
func (s *ExecutionState) revision(repo string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rs, ok := s.Repositories[repo]; ok {
		return rs.Revision
	}
	return ""
}

// completeStage records that repo finished stage, with the revision it is
// at, and persists the state unless persist is false.
func (s *ExecutionState) completeStage(repo string, stage ExecutionStage, revision string, persist bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.Repositories[repo]
	if !ok {
		rs = &RepositoryState{}
		s.Repositories[repo] = rs
	}
	rs.LastSuccessfulStage = stage
	if revision != "" {
		rs.Revision = revision
	}

	if !persist {
		return nil
	}
	return s.saveLocked()
}

// save persists the execution state to its state file.
func (s *ExecutionState) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *ExecutionState) saveLocked() error {
	s.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return relerrors.NewFileSystemError(
			"Failed to save sync state",
			fmt.Sprintf("the state file %s could not be written", s.path),
			"Check permissions on the manifest directory",
			fmt.Errorf("failed to write state file: %w", err))
	}
	return nil
}

// removeStateFile removes the state file after successful completion.
func removeStateFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
