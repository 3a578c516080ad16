package memory_test

import (
	"testing"

	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, memory.NewStore())
}
