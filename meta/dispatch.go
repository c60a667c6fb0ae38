package meta

import (
	"context"
	"fmt"

	"github.com/ruteri/multifs-backend/interfaces"
)

// route is one resolved dispatch target: the drive that owns a path, the
// manager registered for it, and the bare backend-relative path.
type route struct {
	drive interfaces.DriveID
	mgr   interfaces.ContentsManager
	path  string
}

// route splits the drive prefix off p and resolves the owning manager.
// Paths without a recognized prefix route to the default manager verbatim.
func (m *Manager) route(p string) (route, error) {
	drive, rel := interfaces.SplitDrivePath(p)
	mgr, err := m.registry.Resolve(drive)
	if err != nil {
		return route{}, err
	}
	return route{drive: drive, mgr: mgr, path: rel}, nil
}

// routePair resolves a two-path operation. Both paths are parsed
// independently; if they resolve to different drives the operation is
// rejected with ErrCrossDrive instead of being routed to one side.
func (m *Manager) routePair(oldPath, newPath string) (route, string, error) {
	rt, err := m.route(oldPath)
	if err != nil {
		return route{}, "", err
	}
	newDrive, newRel := interfaces.SplitDrivePath(newPath)
	if newDrive != rt.drive {
		return route{}, "", fmt.Errorf("%w: %s -> %s", interfaces.ErrCrossDrive, oldPath, newPath)
	}
	return rt, newRel, nil
}

// rewrite re-prefixes the path fields of a model returned by a backend,
// including nested directory entries, so callers see drive-qualified paths.
func (rt route) rewrite(model *interfaces.ContentModel) *interfaces.ContentModel {
	if model == nil || rt.drive == "" {
		return model
	}
	model.Path = rt.drive.PrefixPath(model.Path)
	for i := range model.Entries {
		model.Entries[i].Path = rt.drive.PrefixPath(model.Entries[i].Path)
	}
	return model
}

// The dispatch strategies below form a closed set, one per operation
// argument shape. Every contents operation on the facade goes through
// exactly one of them.

// dispatchPath wraps operations taking a single leading path and returning
// only an error: delete, checkpoint restore prerequisites and the like.
func (m *Manager) dispatchPath(ctx context.Context, p string, op func(context.Context, interfaces.ContentsManager, string) error) error {
	rt, err := m.route(p)
	if err != nil {
		return err
	}
	return op(ctx, rt.mgr, rt.path)
}

// dispatchPathFlag wraps single-path operations returning a boolean:
// existence and hidden checks.
func (m *Manager) dispatchPathFlag(ctx context.Context, p string, op func(context.Context, interfaces.ContentsManager, string) (bool, error)) (bool, error) {
	rt, err := m.route(p)
	if err != nil {
		return false, err
	}
	return op(ctx, rt.mgr, rt.path)
}

// dispatchPathModel wraps single-path operations returning a content model;
// the model's path fields are re-prefixed before being returned.
func (m *Manager) dispatchPathModel(ctx context.Context, p string, op func(context.Context, interfaces.ContentsManager, string) (*interfaces.ContentModel, error)) (*interfaces.ContentModel, error) {
	rt, err := m.route(p)
	if err != nil {
		return nil, err
	}
	model, err := op(ctx, rt.mgr, rt.path)
	if err != nil {
		return nil, err
	}
	return rt.rewrite(model), nil
}

// dispatchPathPayload wraps operations taking a path plus a payload value.
// Only the path is routed and rewritten; the payload is forwarded untouched.
func (m *Manager) dispatchPathPayload(ctx context.Context, p string, payload *interfaces.ContentModel, op func(context.Context, interfaces.ContentsManager, string, *interfaces.ContentModel) (*interfaces.ContentModel, error)) (*interfaces.ContentModel, error) {
	rt, err := m.route(p)
	if err != nil {
		return nil, err
	}
	model, err := op(ctx, rt.mgr, rt.path, payload)
	if err != nil {
		return nil, err
	}
	return rt.rewrite(model), nil
}

// dispatchPathPair wraps two-path operations (rename/move). Cross-drive
// pairs are rejected by routePair before the backend is touched.
func (m *Manager) dispatchPathPair(ctx context.Context, oldPath, newPath string, op func(context.Context, interfaces.ContentsManager, string, string) error) error {
	rt, newRel, err := m.routePair(oldPath, newPath)
	if err != nil {
		return err
	}
	return op(ctx, rt.mgr, rt.path, newRel)
}

// dispatchPathToken wraps operations taking a path plus an auxiliary
// identifier that is not itself a path (checkpoint ids). The token passes
// through unchanged.
func (m *Manager) dispatchPathToken(ctx context.Context, p, token string, op func(context.Context, interfaces.ContentsManager, string, string) error) error {
	rt, err := m.route(p)
	if err != nil {
		return err
	}
	return op(ctx, rt.mgr, rt.path, token)
}
