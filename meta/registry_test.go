package meta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ruteri/multifs-backend/contents"
	"github.com/ruteri/multifs-backend/interfaces"
	"github.com/stretchr/testify/assert"
)

// trackedManager wraps an in-memory manager and records Close calls.
type trackedManager struct {
	*contents.MemoryManager
	mu     sync.Mutex
	closed bool
}

func (m *trackedManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *trackedManager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// fakeFactory hands out tracked in-memory managers and can be told to fail
// for specific URIs.
type fakeFactory struct {
	mu      sync.Mutex
	created map[string][]*trackedManager
	failOn  map[string]error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		created: make(map[string][]*trackedManager),
		failOn:  make(map[string]error),
	}
}

func (f *fakeFactory) ManagerFor(uri string) (interfaces.ContentsManager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failOn[uri]; ok {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := &trackedManager{MemoryManager: contents.NewMemoryManager(uri, logger)}
	f.created[uri] = append(f.created[uri], mgr)
	return mgr, nil
}

func (f *fakeFactory) createdFor(uri string) []*trackedManager {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[uri]
}

func newTestRegistry(t *testing.T) (*Registry, *fakeFactory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	defaultMgr := contents.NewMemoryManager("mem://default", logger)
	factory := newFakeFactory()
	return NewRegistry(defaultMgr, factory, logger), factory
}

func specsFor(urls ...string) []interfaces.ResourceSpec {
	specs := make([]interfaces.ResourceSpec, 0, len(urls))
	for _, u := range urls {
		specs = append(specs, interfaces.ResourceSpec{URL: u})
	}
	return specs
}

func TestRegistry_ResolveDefault(t *testing.T) {
	registry, _ := newTestRegistry(t)

	mgr, err := registry.Resolve("")
	assert.NoError(t, err)
	assert.Same(t, registry.DefaultManager(), mgr)
}

func TestRegistry_ResolveUnknownDrive(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Resolve("deadbeef")
	assert.ErrorIs(t, err, interfaces.ErrUnknownDrive)
}

func TestRegistry_ReconfigureAssignsDrives(t *testing.T) {
	registry, factory := newTestRegistry(t)

	urls := []string{"mem://alpha", "mem://beta"}
	resources, err := registry.Reconfigure(context.Background(), specsFor(urls...))
	assert.NoError(t, err)
	assert.Len(t, resources, 2)

	for i, url := range urls {
		assert.Equal(t, interfaces.DriveIDFor(url), resources[i].Drive)
		assert.Equal(t, url, resources[i].Spec.URL)
		assert.Len(t, factory.createdFor(url), 1)

		mgr, err := registry.Resolve(resources[i].Drive)
		assert.NoError(t, err)
		assert.Equal(t, url, mgr.LocationURI())
	}

	// The default mapping is untouched.
	mgr, err := registry.Resolve("")
	assert.NoError(t, err)
	assert.Same(t, registry.DefaultManager(), mgr)
}

func TestRegistry_ReconfigureReusesManagers(t *testing.T) {
	registry, factory := newTestRegistry(t)
	ctx := context.Background()

	resources, err := registry.Reconfigure(ctx, specsFor("mem://alpha"))
	assert.NoError(t, err)
	first, err := registry.Resolve(resources[0].Drive)
	assert.NoError(t, err)

	// Same URL again: the open manager must be reused, not rebuilt.
	_, err = registry.Reconfigure(ctx, specsFor("mem://alpha", "mem://beta"))
	assert.NoError(t, err)
	second, err := registry.Resolve(resources[0].Drive)
	assert.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, factory.createdFor("mem://alpha"), 1)
	assert.False(t, factory.createdFor("mem://alpha")[0].isClosed())
}

func TestRegistry_ReconfigureDuplicateDescriptors(t *testing.T) {
	registry, factory := newTestRegistry(t)

	// Two descriptors with the same URL share one manager and one drive.
	resources, err := registry.Reconfigure(context.Background(), specsFor("mem://alpha", "mem://alpha"))
	assert.NoError(t, err)
	assert.Len(t, resources, 2)
	assert.Equal(t, resources[0].Drive, resources[1].Drive)
	assert.Len(t, factory.createdFor("mem://alpha"), 1)
}

func TestRegistry_ReconfigureClosesDropped(t *testing.T) {
	registry, factory := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Reconfigure(ctx, specsFor("mem://alpha", "mem://beta"))
	assert.NoError(t, err)

	_, err = registry.Reconfigure(ctx, specsFor("mem://alpha"))
	assert.NoError(t, err)

	assert.False(t, factory.createdFor("mem://alpha")[0].isClosed())
	assert.True(t, factory.createdFor("mem://beta")[0].isClosed())

	_, err = registry.Resolve(interfaces.DriveIDFor("mem://beta"))
	assert.ErrorIs(t, err, interfaces.ErrUnknownDrive)
}

func TestRegistry_ReconfigureAbortsOnFailure(t *testing.T) {
	registry, factory := newTestRegistry(t)
	ctx := context.Background()

	resources, err := registry.Reconfigure(ctx, specsFor("mem://alpha"))
	assert.NoError(t, err)

	boom := errors.New("connection refused")
	factory.failOn["mem://bad"] = boom

	// The failing call creates gamma before hitting the bad descriptor.
	_, err = registry.Reconfigure(ctx, specsFor("mem://gamma", "mem://bad"))
	assert.ErrorIs(t, err, boom)

	// Previous mapping stays in effect.
	assert.Equal(t, resources, registry.Resources())
	mgr, err := registry.Resolve(resources[0].Drive)
	assert.NoError(t, err)
	assert.Equal(t, "mem://alpha", mgr.LocationURI())
	assert.False(t, factory.createdFor("mem://alpha")[0].isClosed())

	// Managers created during the aborted call are closed, and the new drive
	// never becomes resolvable.
	assert.True(t, factory.createdFor("mem://gamma")[0].isClosed())
	_, err = registry.Resolve(interfaces.DriveIDFor("mem://gamma"))
	assert.ErrorIs(t, err, interfaces.ErrUnknownDrive)
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	stable := "mem://stable"
	stableDrive := interfaces.DriveIDFor(stable)
	_, err := registry.Reconfigure(ctx, specsFor(stable))
	assert.NoError(t, err)

	var wg sync.WaitGroup
	done := make(chan struct{})

	// Readers hammer Resolve while the writer churns the rest of the mapping.
	// The stable drive must resolve on every iteration.
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				mgr, err := registry.Resolve(stableDrive)
				assert.NoError(t, err)
				assert.Equal(t, stable, mgr.LocationURI())
			}
		}()
	}

	for i := 0; i < 50; i++ {
		extra := fmt.Sprintf("mem://churn-%d", i%5)
		_, err := registry.Reconfigure(ctx, specsFor(stable, extra))
		assert.NoError(t, err)
	}
	close(done)
	wg.Wait()
}
