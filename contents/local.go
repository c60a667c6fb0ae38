package contents

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ruteri/multifs-backend/interfaces"
)

// checkpointDir is the directory under the backend root that holds file
// checkpoints. It is excluded from listings and existence checks.
const checkpointDir = ".checkpoints"

// LocalManager implements a contents manager using the local file system.
// It also serves as the default manager bound to the empty drive identifier.
type LocalManager struct {
	root        string
	log         *slog.Logger
	locationURI string
}

// NewLocalManager creates a new local filesystem manager rooted at the given
// directory, creating it if necessary.
func NewLocalManager(root string, log *slog.Logger) (*LocalManager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &LocalManager{
		root:        root,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", root),
	}, nil
}

// resolve maps a backend-relative path onto the filesystem, rejecting
// attempts to escape the root.
func (m *LocalManager) resolve(p string) (abs, rel string, err error) {
	rel = normalizePath(p)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", "", fmt.Errorf("%w: path escapes backend root: %s", interfaces.ErrNotFound, p)
	}
	return filepath.Join(m.root, filepath.FromSlash(rel)), rel, nil
}

// Get returns the model at path. Directories list their children sorted by
// name; file content is populated only when includeContent is set.
func (m *LocalManager) Get(ctx context.Context, p string, includeContent bool) (*interfaces.ContentModel, error) {
	abs, rel, err := m.resolve(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}

	model := modelFromInfo(rel, info)

	if !includeContent {
		return model, nil
	}

	if info.IsDir() {
		entries, err := os.ReadDir(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", p, err)
		}
		for _, e := range entries {
			if e.Name() == checkpointDir {
				continue
			}
			ei, err := e.Info()
			if err != nil {
				continue
			}
			model.Entries = append(model.Entries, *modelFromInfo(path.Join(rel, e.Name()), ei))
		}
		sort.Slice(model.Entries, func(i, j int) bool {
			return model.Entries[i].Name < model.Entries[j].Name
		})
		return model, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	model.Format, model.Content = encodeContent(data)

	m.log.Debug("Read file contents",
		slog.String("path", rel),
		slog.Int("size", len(data)))

	return model, nil
}

// Save writes the model at path. A model of type directory creates the
// directory; file content is decoded according to the model format.
func (m *LocalManager) Save(ctx context.Context, p string, model *interfaces.ContentModel) (*interfaces.ContentModel, error) {
	abs, rel, err := m.resolve(p)
	if err != nil {
		return nil, err
	}

	if model.Type == interfaces.DirectoryType {
		if err := os.MkdirAll(abs, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", p, err)
		}
		return m.Get(ctx, p, false)
	}

	data, err := decodeContent(model)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory for %s: %w", p, err)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", p, err)
	}

	m.log.Debug("Saved file contents",
		slog.String("path", rel),
		slog.Int("size", len(data)))

	return m.Get(ctx, p, false)
}

// Delete removes the file or empty directory at path, along with any
// checkpoints recorded for it.
func (m *LocalManager) Delete(ctx context.Context, p string) error {
	abs, rel, err := m.resolve(p)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
		}
		return fmt.Errorf("failed to stat %s: %w", p, err)
	}

	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}

	if !info.IsDir() {
		// Checkpoints of a deleted file are unreachable, drop them too.
		_ = os.RemoveAll(filepath.Join(m.root, checkpointDir, filepath.FromSlash(rel)))
	}

	m.log.Debug("Deleted path", slog.String("path", rel))
	return nil
}

// Rename moves oldPath to newPath. The destination must not exist.
func (m *LocalManager) Rename(ctx context.Context, oldPath, newPath string) error {
	oldAbs, oldRel, err := m.resolve(oldPath)
	if err != nil {
		return err
	}
	newAbs, newRel, err := m.resolve(newPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(oldAbs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, oldPath)
		}
		return fmt.Errorf("failed to stat %s: %w", oldPath, err)
	}
	if _, err := os.Stat(newAbs); err == nil {
		return fmt.Errorf("%w: %s", interfaces.ErrExists, newPath)
	}

	if err := os.MkdirAll(filepath.Dir(newAbs), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", newPath, err)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", oldPath, newPath, err)
	}

	// Carry checkpoints over to the new path.
	oldCkpt := filepath.Join(m.root, checkpointDir, filepath.FromSlash(oldRel))
	if _, err := os.Stat(oldCkpt); err == nil {
		newCkpt := filepath.Join(m.root, checkpointDir, filepath.FromSlash(newRel))
		_ = os.MkdirAll(filepath.Dir(newCkpt), 0755)
		_ = os.Rename(oldCkpt, newCkpt)
	}

	m.log.Debug("Renamed path",
		slog.String("from", oldRel),
		slog.String("to", newRel))
	return nil
}

// FileExists reports whether a regular file exists at path.
func (m *LocalManager) FileExists(ctx context.Context, p string) (bool, error) {
	abs, _, err := m.resolve(p)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return !info.IsDir(), nil
}

// DirExists reports whether a directory exists at path.
func (m *LocalManager) DirExists(ctx context.Context, p string) (bool, error) {
	abs, _, err := m.resolve(p)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return info.IsDir(), nil
}

// Exists reports whether anything exists at path.
func (m *LocalManager) Exists(ctx context.Context, p string) (bool, error) {
	abs, _, err := m.resolve(p)
	if err != nil {
		return false, nil
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return true, nil
}

// IsHidden reports whether any component of path starts with a dot.
func (m *LocalManager) IsHidden(ctx context.Context, p string) (bool, error) {
	return isDotPath(p), nil
}

// CreateCheckpoint snapshots the current content of the file at path.
func (m *LocalManager) CreateCheckpoint(ctx context.Context, p string) (interfaces.Checkpoint, error) {
	abs, rel, err := m.resolve(p)
	if err != nil {
		return interfaces.Checkpoint{}, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return interfaces.Checkpoint{}, fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
		}
		return interfaces.Checkpoint{}, fmt.Errorf("failed to read %s: %w", p, err)
	}

	id := uuid.NewString()
	dst := filepath.Join(m.root, checkpointDir, filepath.FromSlash(rel), id)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return interfaces.Checkpoint{}, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return interfaces.Checkpoint{}, fmt.Errorf("failed to write checkpoint: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return interfaces.Checkpoint{}, fmt.Errorf("failed to stat checkpoint: %w", err)
	}

	m.log.Debug("Created checkpoint",
		slog.String("path", rel),
		slog.String("checkpoint_id", id))

	return interfaces.Checkpoint{ID: id, LastModified: info.ModTime()}, nil
}

// ListCheckpoints returns the checkpoints recorded for path, oldest first.
func (m *LocalManager) ListCheckpoints(ctx context.Context, p string) ([]interfaces.Checkpoint, error) {
	_, rel, err := m.resolve(p)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(m.root, checkpointDir, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []interfaces.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("failed to list checkpoints for %s: %w", p, err)
	}

	checkpoints := make([]interfaces.Checkpoint, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		checkpoints = append(checkpoints, interfaces.Checkpoint{
			ID:           e.Name(),
			LastModified: info.ModTime(),
		})
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].LastModified.Before(checkpoints[j].LastModified)
	})
	return checkpoints, nil
}

// RestoreCheckpoint replaces the file at path with the checkpointed content.
func (m *LocalManager) RestoreCheckpoint(ctx context.Context, p, checkpointID string) error {
	abs, rel, err := m.resolve(p)
	if err != nil {
		return err
	}

	src := filepath.Join(m.root, checkpointDir, filepath.FromSlash(rel), checkpointID)
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s@%s", interfaces.ErrCheckpointNotFound, p, checkpointID)
		}
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", p, err)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return fmt.Errorf("failed to restore %s: %w", p, err)
	}

	m.log.Debug("Restored checkpoint",
		slog.String("path", rel),
		slog.String("checkpoint_id", checkpointID))
	return nil
}

// DeleteCheckpoint removes one checkpoint of path.
func (m *LocalManager) DeleteCheckpoint(ctx context.Context, p, checkpointID string) error {
	_, rel, err := m.resolve(p)
	if err != nil {
		return err
	}

	target := filepath.Join(m.root, checkpointDir, filepath.FromSlash(rel), checkpointID)
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s@%s", interfaces.ErrCheckpointNotFound, p, checkpointID)
		}
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close releases resources held by the manager. The local manager holds none.
func (m *LocalManager) Close() error {
	return nil
}

// Name returns a unique identifier for this manager.
func (m *LocalManager) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(m.root))
}

// LocationURI returns the URI that identifies this manager.
func (m *LocalManager) LocationURI() string {
	return m.locationURI
}

// normalizePath cleans a backend-relative path into slash form without
// leading or trailing separators. The empty string addresses the root.
func normalizePath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// isDotPath reports whether any component of the path starts with a dot.
func isDotPath(p string) bool {
	for _, part := range strings.Split(normalizePath(p), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// modelFromInfo builds a content model, without content, from stat results.
func modelFromInfo(rel string, info os.FileInfo) *interfaces.ContentModel {
	name := path.Base(rel)
	if rel == "" {
		name = ""
	}
	model := &interfaces.ContentModel{
		Name:         name,
		Path:         rel,
		Size:         info.Size(),
		Created:      info.ModTime(),
		LastModified: info.ModTime(),
		Writable:     true,
	}
	if info.IsDir() {
		model.Type = interfaces.DirectoryType
		model.Size = 0
	} else {
		model.Type = interfaces.FileType
		model.Mimetype = mime.TypeByExtension(path.Ext(rel))
	}
	return model
}

// encodeContent picks the wire format for raw file bytes.
func encodeContent(data []byte) (format, content string) {
	if utf8.Valid(data) {
		return interfaces.TextFormat, string(data)
	}
	return interfaces.Base64Format, base64.StdEncoding.EncodeToString(data)
}

// decodeContent turns model content back into raw bytes.
func decodeContent(model *interfaces.ContentModel) ([]byte, error) {
	switch model.Format {
	case interfaces.Base64Format:
		data, err := base64.StdEncoding.DecodeString(model.Content)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 content: %w", err)
		}
		return data, nil
	case interfaces.TextFormat, "":
		return []byte(model.Content), nil
	default:
		return nil, fmt.Errorf("unsupported content format: %s", model.Format)
	}
}
