package contents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/multifs-backend/interfaces"
)

// IPFSManager implements a contents manager on top of the IPFS mutable files
// (MFS) API. Files live in the node's MFS tree under a configurable base
// path; the MFS operations map one to one onto the capability set.
type IPFSManager struct {
	shell       *shell.Shell
	host        string
	port        string
	base        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSManager creates a new IPFS contents manager connected to the
// specified host and port, rooted at base within the node's MFS tree.
func NewIPFSManager(host, port, base string, log *slog.Logger) (*IPFSManager, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	base = "/" + strings.Trim(base, "/")

	return &IPFSManager{
		shell:       shell.NewShell(apiURL),
		host:        host,
		port:        port,
		base:        base,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s", apiURL, base),
	}, nil
}

// mfsPath maps a backend-relative path onto the MFS tree.
func (m *IPFSManager) mfsPath(rel string) string {
	if rel == "" {
		return m.base
	}
	return path.Join(m.base, rel)
}

// isMissing detects missing-file errors from the MFS API.
func isMissing(err error) bool {
	return strings.Contains(err.Error(), "does not exist") ||
		strings.Contains(err.Error(), "file does not exist")
}

// Get returns the model at path.
func (m *IPFSManager) Get(ctx context.Context, p string, includeContent bool) (*interfaces.ContentModel, error) {
	rel := normalizePath(p)

	stat, err := m.shell.FilesStat(ctx, m.mfsPath(rel))
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
		}
		return nil, fmt.Errorf("failed to stat MFS path: %w", err)
	}

	name := path.Base(rel)
	if rel == "" {
		name = ""
	}
	model := &interfaces.ContentModel{
		Name:     name,
		Path:     rel,
		Writable: true,
	}

	if stat.Type == "directory" {
		model.Type = interfaces.DirectoryType
		if !includeContent {
			return model, nil
		}
		entries, err := m.shell.FilesLs(ctx, m.mfsPath(rel), shell.FilesLs.Stat(true))
		if err != nil {
			return nil, fmt.Errorf("failed to list MFS directory: %w", err)
		}
		for _, e := range entries {
			if e.Name == checkpointDir {
				continue
			}
			entry := interfaces.ContentModel{
				Name:     e.Name,
				Path:     path.Join(rel, e.Name),
				Size:     int64(e.Size),
				Writable: true,
			}
			// MFS ls reports type 1 for directories, 0 for files.
			if e.Type == 1 {
				entry.Type = interfaces.DirectoryType
				entry.Size = 0
			} else {
				entry.Type = interfaces.FileType
				entry.Mimetype = mime.TypeByExtension(path.Ext(e.Name))
			}
			model.Entries = append(model.Entries, entry)
		}
		sort.Slice(model.Entries, func(i, j int) bool {
			return model.Entries[i].Name < model.Entries[j].Name
		})
		return model, nil
	}

	model.Type = interfaces.FileType
	model.Size = int64(stat.Size)
	model.Mimetype = mime.TypeByExtension(path.Ext(rel))

	if !includeContent {
		return model, nil
	}

	start := time.Now()
	reader, err := m.shell.FilesRead(ctx, m.mfsPath(rel))
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
		}
		return nil, fmt.Errorf("failed to read from MFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read MFS file body: %w", err)
	}
	model.Format, model.Content = encodeContent(data)

	m.log.Debug("Read file from MFS",
		slog.String("path", rel),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return model, nil
}

// Save writes the model at path.
func (m *IPFSManager) Save(ctx context.Context, p string, model *interfaces.ContentModel) (*interfaces.ContentModel, error) {
	rel := normalizePath(p)

	if model.Type == interfaces.DirectoryType {
		err := m.shell.FilesMkdir(ctx, m.mfsPath(rel), shell.FilesMkdir.Parents(true))
		if err != nil {
			return nil, fmt.Errorf("failed to create MFS directory: %w", err)
		}
		return m.Get(ctx, p, false)
	}

	data, err := decodeContent(model)
	if err != nil {
		return nil, err
	}

	err = m.shell.FilesWrite(ctx, m.mfsPath(rel), bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return nil, fmt.Errorf("failed to write to MFS: %w", err)
	}

	m.log.Debug("Wrote file to MFS",
		slog.String("path", rel),
		slog.Int("size", len(data)))

	return m.Get(ctx, p, false)
}

// Delete removes the file or empty directory at path.
func (m *IPFSManager) Delete(ctx context.Context, p string) error {
	rel := normalizePath(p)

	stat, err := m.shell.FilesStat(ctx, m.mfsPath(rel))
	if err != nil {
		if isMissing(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
		}
		return fmt.Errorf("failed to stat MFS path: %w", err)
	}

	if stat.Type == "directory" {
		entries, err := m.shell.FilesLs(ctx, m.mfsPath(rel))
		if err != nil {
			return fmt.Errorf("failed to list MFS directory: %w", err)
		}
		if len(entries) > 0 {
			return fmt.Errorf("directory not empty: %s", p)
		}
	}

	if err := m.shell.FilesRm(ctx, m.mfsPath(rel), true); err != nil {
		return fmt.Errorf("failed to remove MFS path: %w", err)
	}

	if stat.Type != "directory" {
		// Checkpoints of a deleted file are unreachable, drop them too.
		_ = m.shell.FilesRm(ctx, m.checkpointPath(rel, ""), true)
	}
	return nil
}

// Rename moves oldPath to newPath. The destination must not exist.
func (m *IPFSManager) Rename(ctx context.Context, oldPath, newPath string) error {
	oldRel := normalizePath(oldPath)
	newRel := normalizePath(newPath)

	if _, err := m.shell.FilesStat(ctx, m.mfsPath(oldRel)); err != nil {
		if isMissing(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, oldPath)
		}
		return fmt.Errorf("failed to stat MFS path: %w", err)
	}
	if _, err := m.shell.FilesStat(ctx, m.mfsPath(newRel)); err == nil {
		return fmt.Errorf("%w: %s", interfaces.ErrExists, newPath)
	}

	if err := m.shell.FilesMv(ctx, m.mfsPath(oldRel), m.mfsPath(newRel)); err != nil {
		return fmt.Errorf("failed to move MFS path: %w", err)
	}

	// Carry checkpoints over to the new path.
	if _, err := m.shell.FilesStat(ctx, m.checkpointPath(oldRel, "")); err == nil {
		_ = m.shell.FilesMv(ctx, m.checkpointPath(oldRel, ""), m.checkpointPath(newRel, ""))
	}
	return nil
}

// FileExists reports whether a regular file exists at path.
func (m *IPFSManager) FileExists(ctx context.Context, p string) (bool, error) {
	stat, err := m.shell.FilesStat(ctx, m.mfsPath(normalizePath(p)))
	if err != nil {
		if isMissing(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat MFS path: %w", err)
	}
	return stat.Type == "file", nil
}

// DirExists reports whether a directory exists at path.
func (m *IPFSManager) DirExists(ctx context.Context, p string) (bool, error) {
	stat, err := m.shell.FilesStat(ctx, m.mfsPath(normalizePath(p)))
	if err != nil {
		if isMissing(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat MFS path: %w", err)
	}
	return stat.Type == "directory", nil
}

// Exists reports whether anything exists at path.
func (m *IPFSManager) Exists(ctx context.Context, p string) (bool, error) {
	_, err := m.shell.FilesStat(ctx, m.mfsPath(normalizePath(p)))
	if err != nil {
		if isMissing(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat MFS path: %w", err)
	}
	return true, nil
}

// IsHidden reports whether any component of path starts with a dot.
func (m *IPFSManager) IsHidden(ctx context.Context, p string) (bool, error) {
	return isDotPath(p), nil
}

// checkpointPath builds the MFS path holding checkpoints of rel; with an
// empty id it names the per-file checkpoint directory.
func (m *IPFSManager) checkpointPath(rel, id string) string {
	return path.Join(m.base, checkpointDir, rel, id)
}

// CreateCheckpoint snapshots the file at path via an MFS copy.
func (m *IPFSManager) CreateCheckpoint(ctx context.Context, p string) (interfaces.Checkpoint, error) {
	rel := normalizePath(p)

	if ok, err := m.FileExists(ctx, p); err != nil {
		return interfaces.Checkpoint{}, err
	} else if !ok {
		return interfaces.Checkpoint{}, fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
	}

	if err := m.shell.FilesMkdir(ctx, m.checkpointPath(rel, ""), shell.FilesMkdir.Parents(true)); err != nil {
		return interfaces.Checkpoint{}, fmt.Errorf("failed to create MFS checkpoint directory: %w", err)
	}

	id := uuid.NewString()
	if err := m.shell.FilesCp(ctx, m.mfsPath(rel), m.checkpointPath(rel, id)); err != nil {
		return interfaces.Checkpoint{}, fmt.Errorf("failed to copy MFS file to checkpoint: %w", err)
	}

	m.log.Debug("Created checkpoint in MFS",
		slog.String("path", rel),
		slog.String("checkpoint_id", id))

	return interfaces.Checkpoint{ID: id, LastModified: time.Now()}, nil
}

// ListCheckpoints returns the checkpoints recorded for path.
func (m *IPFSManager) ListCheckpoints(ctx context.Context, p string) ([]interfaces.Checkpoint, error) {
	rel := normalizePath(p)

	entries, err := m.shell.FilesLs(ctx, m.checkpointPath(rel, ""))
	if err != nil {
		if isMissing(err) {
			return []interfaces.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("failed to list MFS checkpoints: %w", err)
	}

	checkpoints := make([]interfaces.Checkpoint, 0, len(entries))
	for _, e := range entries {
		// MFS keeps no modification times; checkpoint ordering is by id
		// only.
		checkpoints = append(checkpoints, interfaces.Checkpoint{ID: e.Name})
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].ID < checkpoints[j].ID
	})
	return checkpoints, nil
}

// RestoreCheckpoint replaces the file at path with the checkpointed copy.
func (m *IPFSManager) RestoreCheckpoint(ctx context.Context, p, checkpointID string) error {
	rel := normalizePath(p)

	src := m.checkpointPath(rel, checkpointID)
	if _, err := m.shell.FilesStat(ctx, src); err != nil {
		if isMissing(err) {
			return fmt.Errorf("%w: %s@%s", interfaces.ErrCheckpointNotFound, p, checkpointID)
		}
		return fmt.Errorf("failed to stat MFS checkpoint: %w", err)
	}

	// FilesCp refuses to overwrite, so drop the current file first.
	_ = m.shell.FilesRm(ctx, m.mfsPath(rel), true)
	if err := m.shell.FilesCp(ctx, src, m.mfsPath(rel)); err != nil {
		return fmt.Errorf("failed to restore MFS checkpoint: %w", err)
	}
	return nil
}

// DeleteCheckpoint removes one checkpoint of path.
func (m *IPFSManager) DeleteCheckpoint(ctx context.Context, p, checkpointID string) error {
	rel := normalizePath(p)

	src := m.checkpointPath(rel, checkpointID)
	if _, err := m.shell.FilesStat(ctx, src); err != nil {
		if isMissing(err) {
			return fmt.Errorf("%w: %s@%s", interfaces.ErrCheckpointNotFound, p, checkpointID)
		}
		return fmt.Errorf("failed to stat MFS checkpoint: %w", err)
	}
	if err := m.shell.FilesRm(ctx, src, true); err != nil {
		return fmt.Errorf("failed to delete MFS checkpoint: %w", err)
	}
	return nil
}

// Close releases resources held by the manager. The IPFS shell keeps no
// persistent connections that need an explicit shutdown.
func (m *IPFSManager) Close() error {
	return nil
}

// Name returns a unique identifier for this manager.
func (m *IPFSManager) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", m.host, m.port)
}

// LocationURI returns the URI that identifies this manager.
func (m *IPFSManager) LocationURI() string {
	return m.locationURI
}
