package ports

import (
	"context"

	"github.com/aretw0/canopy/pkg/domain"
)

// CheckpointStore persists run checkpoints.
type CheckpointStore interface {
	// Save persists the checkpoint under its run ID, replacing any previous one.
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// Load retrieves a checkpoint.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Checkpoint, error)

	// Delete removes a checkpoint. Deleting an unknown run is not an error.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of every stored run.
	List(ctx context.Context) ([]string, error)
}
