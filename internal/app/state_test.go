package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/work", "release", StateFileName), stateFilePath("/work/release/relesia.yaml"))
}

func TestLoadState_Missing(t *testing.T) {
	state, err := loadState(filepath.Join(t.TempDir(), StateFileName))
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestLoadState_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := loadState(path)
	assert.Error(t, err)
}

func TestExecutionState_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)
	state := newState(path, "/work/relesia.yaml", "run-1")

	require.NoError(t, state.completeStage("api", StageClone, "abc123", true))
	require.NoError(t, state.completeStage("api", StageCheckout, "", true))

	loaded, err := loadState(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, StateSchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, StageCheckout, loaded.Repositories["api"].LastSuccessfulStage)
	assert.Equal(t, "abc123", loaded.revision("api"), "an empty revision keeps the previous one")
}

func TestExecutionState_CompleteStageWithoutPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)
	state := newState(path, "/work/relesia.yaml", "run-1")

	require.NoError(t, state.completeStage("api", StageClone, "", false))
	assert.True(t, state.shouldSkipStage("api", StageClone))
	assert.NoFileExists(t, path)
}

func TestExecutionState_ShouldSkipStage(t *testing.T) {
	var nilState *ExecutionState
	assert.False(t, nilState.shouldSkipStage("api", StageClone))

	state := newState(filepath.Join(t.TempDir(), StateFileName), "", "run")
	assert.False(t, state.shouldSkipStage("api", StageClone))

	require.NoError(t, state.completeStage("api", StageCheckout, "", false))

	tests := []struct {
		stage ExecutionStage
		skip  bool
	}{
		{StageClone, true},
		{StageCheckout, true},
		{StageFetch, false},
		{StageOverlay, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.Equal(t, tt.skip, state.shouldSkipStage("api", tt.stage))
			assert.False(t, state.shouldSkipStage("web", tt.stage))
		})
	}
}

func TestExecutionState_NextStage(t *testing.T) {
	state := newState(filepath.Join(t.TempDir(), StateFileName), "", "run")
	assert.Equal(t, StageClone, state.nextStage("api"))

	require.NoError(t, state.completeStage("api", StageClone, "", false))
	assert.Equal(t, StageCheckout, state.nextStage("api"))

	require.NoError(t, state.completeStage("api", StageOverlay, "", false))
	assert.Equal(t, StageCompleted, state.nextStage("api"))

	require.NoError(t, state.completeStage("api", StageCompleted, "", false))
	assert.Equal(t, StageCompleted, state.nextStage("api"))
}

func TestRemoveStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), StateFileName)
	require.NoError(t, removeStateFile(path))

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
	require.NoError(t, removeStateFile(path))
	assert.NoFileExists(t, path)
}
