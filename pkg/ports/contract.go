package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract verifies that a CheckpointStore implementation
// adheres to the interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405.000000")

	t.Run("Save and Load", func(t *testing.T) {
		cp := domain.NewCheckpoint(runID, "coder", "print hello")
		cp.StatePath = "Exec"
		cp.StepNum = 2
		cp.History = []string{"Plan", "Propose"}

		require.NoError(t, store.Save(ctx, cp), "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "coder", loaded.Worker)
		assert.Equal(t, "print hello", loaded.Task)
		assert.Equal(t, "Exec", loaded.StatePath)
		assert.Equal(t, 2, loaded.StepNum)
		assert.Equal(t, domain.RunActive, loaded.Status)
		assert.Equal(t, []string{"Plan", "Propose"}, loaded.History)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		cp := domain.NewCheckpoint(runID, "coder", "print hello")
		cp.Status = domain.RunSucceeded
		cp.StatePath = "Done"
		require.NoError(t, store.Save(ctx, cp))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, domain.RunSucceeded, loaded.Status)
		assert.Equal(t, "Done", loaded.StatePath)
	})

	t.Run("Load Isolation", func(t *testing.T) {
		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		loaded.Worker = "mutated"

		again, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, "coder", again.Worker, "mutating a loaded checkpoint must not change the store")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewCheckpoint(runID, "coder", "t")))
		require.NoError(t, store.Delete(ctx, runID), "Delete should not return error")

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrRunNotFound, "Load after Delete should return ErrRunNotFound")

		assert.NoError(t, store.Delete(ctx, runID), "Deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		require.NoError(t, store.Save(ctx, domain.NewCheckpoint(id1, "a", "t")))
		require.NoError(t, store.Save(ctx, domain.NewCheckpoint(id2, "b", "t")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
