package contents

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/multifs-backend/interfaces"
)

// MemoryManager is an in-memory contents manager. It stores files in process
// memory without any filesystem dependency and is safe for concurrent use.
// It backs the mem:// scheme and is used heavily in tests.
type MemoryManager struct {
	mu          sync.RWMutex
	files       map[string]*memFile
	dirs        map[string]time.Time
	checkpoints map[string][]memCheckpoint
	log         *slog.Logger
	locationURI string
}

type memFile struct {
	data     []byte
	created  time.Time
	modified time.Time
}

type memCheckpoint struct {
	id       string
	data     []byte
	modified time.Time
}

// NewMemoryManager creates a new in-memory contents manager.
func NewMemoryManager(locationURI string, log *slog.Logger) *MemoryManager {
	if log == nil {
		log = slog.Default()
	}
	if locationURI == "" {
		locationURI = "mem://"
	}
	return &MemoryManager{
		files:       make(map[string]*memFile),
		dirs:        map[string]time.Time{"": time.Now()},
		checkpoints: make(map[string][]memCheckpoint),
		log:         log,
		locationURI: locationURI,
	}
}

// Get returns the model at path.
func (m *MemoryManager) Get(ctx context.Context, p string, includeContent bool) (*interfaces.ContentModel, error) {
	rel := normalizePath(p)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.files[rel]; ok {
		model := m.fileModel(rel, f)
		if includeContent {
			model.Format, model.Content = encodeContent(f.data)
		}
		return model, nil
	}

	created, ok := m.dirs[rel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
	}

	model := m.dirModel(rel, created)
	if !includeContent {
		return model, nil
	}

	for name, f := range m.files {
		if parentOf(name) == rel {
			model.Entries = append(model.Entries, *m.fileModel(name, f))
		}
	}
	for name, c := range m.dirs {
		if name != "" && parentOf(name) == rel {
			model.Entries = append(model.Entries, *m.dirModel(name, c))
		}
	}
	sort.Slice(model.Entries, func(i, j int) bool {
		return model.Entries[i].Name < model.Entries[j].Name
	})
	return model, nil
}

// Save writes the model at path.
func (m *MemoryManager) Save(ctx context.Context, p string, model *interfaces.ContentModel) (*interfaces.ContentModel, error) {
	rel := normalizePath(p)
	now := time.Now()

	m.mu.Lock()
	if model.Type == interfaces.DirectoryType {
		m.mkdirs(rel, now)
		m.mu.Unlock()
		return m.Get(ctx, p, false)
	}

	data, err := decodeContent(model)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	m.mkdirs(parentOf(rel), now)
	created := now
	if existing, ok := m.files[rel]; ok {
		created = existing.created
	}
	m.files[rel] = &memFile{data: data, created: created, modified: now}
	m.mu.Unlock()

	m.log.Debug("Saved file contents",
		slog.String("path", rel),
		slog.Int("size", len(data)))

	return m.Get(ctx, p, false)
}

// Delete removes the file or empty directory at path.
func (m *MemoryManager) Delete(ctx context.Context, p string) error {
	rel := normalizePath(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[rel]; ok {
		delete(m.files, rel)
		delete(m.checkpoints, rel)
		return nil
	}

	if _, ok := m.dirs[rel]; ok {
		for name := range m.files {
			if strings.HasPrefix(name, rel+"/") {
				return fmt.Errorf("directory not empty: %s", p)
			}
		}
		for name := range m.dirs {
			if strings.HasPrefix(name, rel+"/") {
				return fmt.Errorf("directory not empty: %s", p)
			}
		}
		delete(m.dirs, rel)
		return nil
	}

	return fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
}

// Rename moves oldPath to newPath, including directory subtrees. The
// destination must not exist.
func (m *MemoryManager) Rename(ctx context.Context, oldPath, newPath string) error {
	oldRel := normalizePath(oldPath)
	newRel := normalizePath(newPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[newRel]; ok {
		return fmt.Errorf("%w: %s", interfaces.ErrExists, newPath)
	}
	if _, ok := m.dirs[newRel]; ok {
		return fmt.Errorf("%w: %s", interfaces.ErrExists, newPath)
	}

	if f, ok := m.files[oldRel]; ok {
		m.mkdirs(parentOf(newRel), time.Now())
		m.files[newRel] = f
		delete(m.files, oldRel)
		if cps, ok := m.checkpoints[oldRel]; ok {
			m.checkpoints[newRel] = cps
			delete(m.checkpoints, oldRel)
		}
		return nil
	}

	created, ok := m.dirs[oldRel]
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrNotFound, oldPath)
	}

	m.mkdirs(parentOf(newRel), time.Now())
	m.dirs[newRel] = created
	delete(m.dirs, oldRel)
	for name, f := range m.files {
		if strings.HasPrefix(name, oldRel+"/") {
			m.files[newRel+strings.TrimPrefix(name, oldRel)] = f
			delete(m.files, name)
		}
	}
	for name, c := range m.dirs {
		if strings.HasPrefix(name, oldRel+"/") {
			m.dirs[newRel+strings.TrimPrefix(name, oldRel)] = c
			delete(m.dirs, name)
		}
	}
	for name, cps := range m.checkpoints {
		if strings.HasPrefix(name, oldRel+"/") {
			m.checkpoints[newRel+strings.TrimPrefix(name, oldRel)] = cps
			delete(m.checkpoints, name)
		}
	}
	return nil
}

// FileExists reports whether a regular file exists at path.
func (m *MemoryManager) FileExists(ctx context.Context, p string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[normalizePath(p)]
	return ok, nil
}

// DirExists reports whether a directory exists at path.
func (m *MemoryManager) DirExists(ctx context.Context, p string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.dirs[normalizePath(p)]
	return ok, nil
}

// Exists reports whether anything exists at path.
func (m *MemoryManager) Exists(ctx context.Context, p string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel := normalizePath(p)
	if _, ok := m.files[rel]; ok {
		return true, nil
	}
	_, ok := m.dirs[rel]
	return ok, nil
}

// IsHidden reports whether any component of path starts with a dot.
func (m *MemoryManager) IsHidden(ctx context.Context, p string) (bool, error) {
	return isDotPath(p), nil
}

// CreateCheckpoint snapshots the current content of the file at path.
func (m *MemoryManager) CreateCheckpoint(ctx context.Context, p string) (interfaces.Checkpoint, error) {
	rel := normalizePath(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[rel]
	if !ok {
		return interfaces.Checkpoint{}, fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
	}

	data := make([]byte, len(f.data))
	copy(data, f.data)

	cp := memCheckpoint{id: uuid.NewString(), data: data, modified: time.Now()}
	m.checkpoints[rel] = append(m.checkpoints[rel], cp)

	return interfaces.Checkpoint{ID: cp.id, LastModified: cp.modified}, nil
}

// ListCheckpoints returns the checkpoints recorded for path, oldest first.
func (m *MemoryManager) ListCheckpoints(ctx context.Context, p string) ([]interfaces.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cps := m.checkpoints[normalizePath(p)]
	out := make([]interfaces.Checkpoint, 0, len(cps))
	for _, cp := range cps {
		out = append(out, interfaces.Checkpoint{ID: cp.id, LastModified: cp.modified})
	}
	return out, nil
}

// RestoreCheckpoint replaces the file at path with the checkpointed content.
func (m *MemoryManager) RestoreCheckpoint(ctx context.Context, p, checkpointID string) error {
	rel := normalizePath(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cp := range m.checkpoints[rel] {
		if cp.id == checkpointID {
			data := make([]byte, len(cp.data))
			copy(data, cp.data)
			now := time.Now()
			created := now
			if f, ok := m.files[rel]; ok {
				created = f.created
			}
			m.mkdirs(parentOf(rel), now)
			m.files[rel] = &memFile{data: data, created: created, modified: now}
			return nil
		}
	}
	return fmt.Errorf("%w: %s@%s", interfaces.ErrCheckpointNotFound, p, checkpointID)
}

// DeleteCheckpoint removes one checkpoint of path.
func (m *MemoryManager) DeleteCheckpoint(ctx context.Context, p, checkpointID string) error {
	rel := normalizePath(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	cps := m.checkpoints[rel]
	for i, cp := range cps {
		if cp.id == checkpointID {
			m.checkpoints[rel] = append(cps[:i], cps[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s@%s", interfaces.ErrCheckpointNotFound, p, checkpointID)
}

// Close releases resources held by the manager.
func (m *MemoryManager) Close() error {
	return nil
}

// Name returns a unique identifier for this manager.
func (m *MemoryManager) Name() string {
	return "memory"
}

// LocationURI returns the URI that identifies this manager.
func (m *MemoryManager) LocationURI() string {
	return m.locationURI
}

// mkdirs records dir and all its ancestors. Callers hold the write lock.
func (m *MemoryManager) mkdirs(dir string, now time.Time) {
	for {
		if _, ok := m.dirs[dir]; ok {
			return
		}
		m.dirs[dir] = now
		if dir == "" {
			return
		}
		dir = parentOf(dir)
	}
}

func (m *MemoryManager) fileModel(rel string, f *memFile) *interfaces.ContentModel {
	return &interfaces.ContentModel{
		Name:         path.Base(rel),
		Path:         rel,
		Type:         interfaces.FileType,
		Mimetype:     mime.TypeByExtension(path.Ext(rel)),
		Size:         int64(len(f.data)),
		Created:      f.created,
		LastModified: f.modified,
		Writable:     true,
	}
}

func (m *MemoryManager) dirModel(rel string, created time.Time) *interfaces.ContentModel {
	name := path.Base(rel)
	if rel == "" {
		name = ""
	}
	return &interfaces.ContentModel{
		Name:         name,
		Path:         rel,
		Type:         interfaces.DirectoryType,
		Created:      created,
		LastModified: created,
		Writable:     true,
	}
}

// parentOf returns the parent of a normalized path, "" for top-level names.
func parentOf(rel string) string {
	i := strings.LastIndexByte(rel, '/')
	if i < 0 {
		return ""
	}
	return rel[:i]
}
