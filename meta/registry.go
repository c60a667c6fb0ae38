package meta

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/multifs-backend/interfaces"
	"go.uber.org/atomic"
)

// snapshot is one immutable registry state: the drive mapping plus the
// ordered resource list that produced it. Snapshots are never mutated after
// publication; Reconfigure builds a fresh one and swaps the pointer.
type snapshot struct {
	managers  map[interfaces.DriveID]interfaces.ContentsManager
	resources []interfaces.Resource
}

// Registry holds the current mapping from drive identifiers to live contents
// managers and the list of registered resources.
//
// Resolution reads are lock-free against an atomically-swapped snapshot;
// reconfigurations are serialized by a mutex. Readers observe either the
// entirely-old or entirely-new mapping, never a mix.
type Registry struct {
	log        *slog.Logger
	factory    interfaces.ManagerFactory
	defaultMgr interfaces.ContentsManager

	// reconfigureMu serializes Reconfigure calls so that concurrent
	// reconfigurations cannot lose each other's manager instances.
	reconfigureMu sync.Mutex
	snap          atomic.Pointer[snapshot]
}

// NewRegistry creates a registry around the given default manager. The
// default manager is bound to the empty drive identifier and survives every
// reconfiguration.
func NewRegistry(defaultMgr interfaces.ContentsManager, factory interfaces.ManagerFactory, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		log:        log,
		factory:    factory,
		defaultMgr: defaultMgr,
	}
	r.snap.Store(&snapshot{
		managers: map[interfaces.DriveID]interfaces.ContentsManager{
			"": defaultMgr,
		},
	})
	return r
}

// Reconfigure replaces the registered resource set.
//
// For each descriptor the drive identifier is derived from its connection
// URI. Managers already open under that identifier, from the previous
// configuration or from an earlier descriptor in the same call, are reused;
// missing ones are constructed through the factory. If any construction
// fails, the whole reconfiguration is aborted, managers created during the
// failed call are closed, and the previous mapping stays in effect.
//
// On success the new mapping becomes visible as a single update and every
// manager dropped from the previous configuration is closed. The returned
// resources are in descriptor order.
func (r *Registry) Reconfigure(ctx context.Context, specs []interfaces.ResourceSpec) ([]interfaces.Resource, error) {
	r.reconfigureMu.Lock()
	defer r.reconfigureMu.Unlock()

	old := r.snap.Load()

	next := &snapshot{
		managers:  make(map[interfaces.DriveID]interfaces.ContentsManager, len(specs)+1),
		resources: make([]interfaces.Resource, 0, len(specs)),
	}
	next.managers[""] = r.defaultMgr

	var created []interfaces.ContentsManager
	for _, spec := range specs {
		drive := interfaces.DriveIDFor(spec.URL)

		if _, ok := next.managers[drive]; !ok {
			if mgr, ok := old.managers[drive]; ok {
				next.managers[drive] = mgr
			} else {
				mgr, err := r.factory.ManagerFor(spec.URL)
				if err != nil {
					// Abort wholesale: close what this call created and keep
					// the previous mapping live.
					for _, c := range created {
						if cerr := c.Close(); cerr != nil {
							r.log.Warn("Failed to close manager after aborted reconfiguration",
								slog.String("manager", c.Name()), "err", cerr)
						}
					}
					return nil, fmt.Errorf("failed to create manager for %q: %w", spec.URL, err)
				}
				created = append(created, mgr)
				next.managers[drive] = mgr
			}
		}

		next.resources = append(next.resources, interfaces.Resource{Drive: drive, Spec: spec})
	}

	r.snap.Store(next)

	// Close managers dropped by this reconfiguration. The default manager is
	// never dropped.
	for drive, mgr := range old.managers {
		if drive == "" {
			continue
		}
		if _, kept := next.managers[drive]; kept {
			continue
		}
		if err := mgr.Close(); err != nil {
			r.log.Warn("Failed to close dropped manager",
				slog.String("drive", drive.String()),
				slog.String("manager", mgr.Name()), "err", err)
		}
	}

	r.log.Info("Registry reconfigured",
		slog.Int("resources", len(next.resources)),
		slog.Int("managers", len(next.managers)))

	return next.resources, nil
}

// Resolve returns the manager owning the given drive identifier. The empty
// identifier resolves to the default manager.
func (r *Registry) Resolve(drive interfaces.DriveID) (interfaces.ContentsManager, error) {
	mgr, ok := r.snap.Load().managers[drive]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrUnknownDrive, drive)
	}
	return mgr, nil
}

// DefaultManager returns the manager bound to the empty drive identifier.
func (r *Registry) DefaultManager() interfaces.ContentsManager {
	return r.defaultMgr
}

// Resources returns the resource list produced by the most recent
// Reconfigure call, empty before the first call.
func (r *Registry) Resources() []interfaces.Resource {
	current := r.snap.Load().resources
	out := make([]interfaces.Resource, len(current))
	copy(out, current)
	return out
}
