package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/registry"
	"github.com/aretw0/canopy/pkg/tot"
)

type fakeWorker struct {
	name   string
	closed int
}

func (f *fakeWorker) Name() string        { return f.name }
func (f *fakeWorker) Description() string { return "fake " + f.name }
func (f *fakeWorker) Info() domain.WorkerInfo {
	return domain.WorkerInfo{Name: f.name, Description: f.Description()}
}
func (f *fakeWorker) Run(context.Context, string) (*tot.Result, error) { return &tot.Result{}, nil }
func (f *fakeWorker) Close() error {
	f.closed++
	return nil
}

func TestRegistry(t *testing.T) {
	r := registry.NewRegistry()

	require.NoError(t, r.Register(&fakeWorker{name: "b"}))
	require.NoError(t, r.Register(&fakeWorker{name: "a"}))

	err := r.Register(&fakeWorker{name: "a"})
	assert.ErrorIs(t, err, domain.ErrDuplicateWorker)

	assert.Equal(t, []string{"b", "a"}, r.Names())
	assert.Equal(t, 2, r.Len())

	w, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", w.Name())

	_, err = r.Lookup("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownWorker)

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "fake b", infos[0].Description)
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := registry.NewRegistry()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures int
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Register(&fakeWorker{name: fmt.Sprintf("w%d", i%10)}); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, r.Len())
	assert.Equal(t, 40, failures)
}

func TestRegistry_Close(t *testing.T) {
	r := registry.NewRegistry()
	a, b := &fakeWorker{name: "a"}, &fakeWorker{name: "b"}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	require.NoError(t, r.Close())
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}
