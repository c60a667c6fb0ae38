package meta

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ruteri/multifs-backend/contents"
	"github.com/ruteri/multifs-backend/interfaces"
)

// Config holds the parameters for building the meta manager.
type Config struct {
	// RootDir is the directory served by the default manager, bound to
	// unprefixed paths.
	RootDir string

	// Factory constructs backend managers during reconfiguration. When nil a
	// contents.Factory is used.
	Factory interfaces.ManagerFactory

	Log *slog.Logger
}

// Manager is the routing facade over every registered backend. It implements
// the full contents-manager capability set itself: callers address files with
// drive-prefixed paths and the facade forwards each operation to the backend
// owning the drive, re-prefixing path fields in results.
type Manager struct {
	log      *slog.Logger
	registry *Registry
}

// NewManager builds the facade together with its default local-filesystem
// manager rooted at cfg.RootDir. The default manager is available
// immediately; additional backends are attached through Reconfigure.
func NewManager(cfg *Config) (*Manager, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	factory := cfg.Factory
	if factory == nil {
		factory = contents.NewFactory(log)
	}

	defaultMgr, err := contents.NewLocalManager(cfg.RootDir, log)
	if err != nil {
		return nil, err
	}

	return &Manager{
		log:      log,
		registry: NewRegistry(defaultMgr, factory, log),
	}, nil
}

var _ interfaces.ContentsManager = (*Manager)(nil)

// Reconfigure replaces the registered backend set with the given descriptors
// and returns the resulting resource records. On failure the previous set
// stays in effect.
func (m *Manager) Reconfigure(ctx context.Context, specs []interfaces.ResourceSpec) ([]interfaces.Resource, error) {
	return m.registry.Reconfigure(ctx, specs)
}

// Resources returns the currently registered resource records.
func (m *Manager) Resources() []interfaces.Resource {
	return m.registry.Resources()
}

// Get returns the model at the drive-prefixed path.
func (m *Manager) Get(ctx context.Context, p string, includeContent bool) (*interfaces.ContentModel, error) {
	return m.dispatchPathModel(ctx, p, func(ctx context.Context, mgr interfaces.ContentsManager, rel string) (*interfaces.ContentModel, error) {
		return mgr.Get(ctx, rel, includeContent)
	})
}

// Save writes the model at the drive-prefixed path.
func (m *Manager) Save(ctx context.Context, p string, model *interfaces.ContentModel) (*interfaces.ContentModel, error) {
	return m.dispatchPathPayload(ctx, p, model, func(ctx context.Context, mgr interfaces.ContentsManager, rel string, payload *interfaces.ContentModel) (*interfaces.ContentModel, error) {
		return mgr.Save(ctx, rel, payload)
	})
}

// Delete removes the file or empty directory at the drive-prefixed path.
func (m *Manager) Delete(ctx context.Context, p string) error {
	return m.dispatchPath(ctx, p, func(ctx context.Context, mgr interfaces.ContentsManager, rel string) error {
		return mgr.Delete(ctx, rel)
	})
}

// Rename moves oldPath to newPath. Both paths must resolve to the same
// drive; cross-drive pairs fail with ErrCrossDrive before any backend is
// touched.
func (m *Manager) Rename(ctx context.Context, oldPath, newPath string) error {
	return m.dispatchPathPair(ctx, oldPath, newPath, func(ctx context.Context, mgr interfaces.ContentsManager, oldRel, newRel string) error {
		return mgr.Rename(ctx, oldRel, newRel)
	})
}

// FileExists reports whether a regular file exists at the path.
func (m *Manager) FileExists(ctx context.Context, p string) (bool, error) {
	return m.dispatchPathFlag(ctx, p, func(ctx context.Context, mgr interfaces.ContentsManager, rel string) (bool, error) {
		return mgr.FileExists(ctx, rel)
	})
}

// DirExists reports whether a directory exists at the path.
func (m *Manager) DirExists(ctx context.Context, p string) (bool, error) {
	return m.dispatchPathFlag(ctx, p, func(ctx context.Context, mgr interfaces.ContentsManager, rel string) (bool, error) {
		return mgr.DirExists(ctx, rel)
	})
}

// Exists reports whether anything exists at the path.
func (m *Manager) Exists(ctx context.Context, p string) (bool, error) {
	return m.dispatchPathFlag(ctx, p, func(ctx context.Context, mgr interfaces.ContentsManager, rel string) (bool, error) {
		return mgr.Exists(ctx, rel)
	})
}

// IsHidden reports whether the path is hidden on its backend.
func (m *Manager) IsHidden(ctx context.Context, p string) (bool, error) {
	return m.dispatchPathFlag(ctx, p, func(ctx context.Context, mgr interfaces.ContentsManager, rel string) (bool, error) {
		return mgr.IsHidden(ctx, rel)
	})
}

// CreateCheckpoint snapshots the file at the drive-prefixed path.
func (m *Manager) CreateCheckpoint(ctx context.Context, p string) (interfaces.Checkpoint, error) {
	rt, err := m.route(p)
	if err != nil {
		return interfaces.Checkpoint{}, err
	}
	return rt.mgr.CreateCheckpoint(ctx, rt.path)
}

// ListCheckpoints returns the checkpoints recorded for the path.
func (m *Manager) ListCheckpoints(ctx context.Context, p string) ([]interfaces.Checkpoint, error) {
	rt, err := m.route(p)
	if err != nil {
		return nil, err
	}
	return rt.mgr.ListCheckpoints(ctx, rt.path)
}

// RestoreCheckpoint replaces the file at the path with the checkpointed
// state.
func (m *Manager) RestoreCheckpoint(ctx context.Context, p, checkpointID string) error {
	return m.dispatchPathToken(ctx, p, checkpointID, func(ctx context.Context, mgr interfaces.ContentsManager, rel, id string) error {
		return mgr.RestoreCheckpoint(ctx, rel, id)
	})
}

// DeleteCheckpoint removes one checkpoint of the path.
func (m *Manager) DeleteCheckpoint(ctx context.Context, p, checkpointID string) error {
	return m.dispatchPathToken(ctx, p, checkpointID, func(ctx context.Context, mgr interfaces.ContentsManager, rel, id string) error {
		return mgr.DeleteCheckpoint(ctx, rel, id)
	})
}

// Close closes every registered backend manager including the default one.
func (m *Manager) Close() error {
	var errs []error
	snap := m.registry.snap.Load()
	for drive, mgr := range snap.managers {
		if err := mgr.Close(); err != nil {
			m.log.Warn("Failed to close manager",
				slog.String("drive", drive.String()),
				slog.String("manager", mgr.Name()), "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Name implements interfaces.ContentsManager.
func (m *Manager) Name() string { return "meta" }

// LocationURI implements interfaces.ContentsManager.
func (m *Manager) LocationURI() string {
	return m.registry.DefaultManager().LocationURI()
}
