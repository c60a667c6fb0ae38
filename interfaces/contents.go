package interfaces

import (
	"context"
	"errors"
	"time"
)

// Content model types.
const (
	// FileType identifies regular file models.
	FileType = "file"
	// DirectoryType identifies directory models; directory models carry
	// their children in Entries instead of Content.
	DirectoryType = "directory"
)

// Content encoding formats.
const (
	// TextFormat content is UTF-8 text.
	TextFormat = "text"
	// Base64Format content is base64-encoded binary.
	Base64Format = "base64"
)

var (
	// ErrUnknownDrive is returned when a path references a drive identifier
	// that is not present in the current registry mapping.
	ErrUnknownDrive = errors.New("unknown drive")

	// ErrCrossDrive is returned when a two-path operation resolves its paths
	// to different drives. Such operations are rejected, never routed to one
	// side.
	ErrCrossDrive = errors.New("operation spans multiple drives")

	// ErrNotFound is returned when a path does not exist on the backend.
	ErrNotFound = errors.New("no such file or directory")

	// ErrExists is returned when the target of an operation already exists.
	ErrExists = errors.New("file already exists")

	// ErrNotADirectory is returned when a directory operation is applied to a
	// file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory is returned when a file operation is applied to a
	// directory.
	ErrIsADirectory = errors.New("is a directory")

	// ErrHiddenNotAllowed is returned when an operation addresses a hidden
	// path and hidden access is disabled.
	ErrHiddenNotAllowed = errors.New("hidden paths are not allowed")

	// ErrCheckpointNotFound is returned when a checkpoint identifier does not
	// exist for the given path.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrInvalidResourceURI is returned when a resource connection URI is
	// malformed or uses an unsupported scheme.
	ErrInvalidResourceURI = errors.New("invalid resource URI")
)

// ContentModel describes one file or directory as exchanged with callers.
//
// Path is always relative to the drive that owns the entry. The meta manager
// re-prefixes Path (including nested directory entries) with the drive
// identifier before returning models to callers.
type ContentModel struct {
	Name         string         `json:"name"`
	Path         string         `json:"path"`
	Type         string         `json:"type"`
	Format       string         `json:"format,omitempty"`
	Mimetype     string         `json:"mimetype,omitempty"`
	Content      string         `json:"content,omitempty"`
	Entries      []ContentModel `json:"entries,omitempty"`
	Size         int64          `json:"size"`
	Created      time.Time      `json:"created"`
	LastModified time.Time      `json:"last_modified"`
	Writable     bool           `json:"writable"`
}

// Checkpoint identifies one saved state of a file.
type Checkpoint struct {
	ID           string    `json:"id"`
	LastModified time.Time `json:"last_modified"`
}

// ContentsManager is the full filesystem-style capability set implemented by
// every storage backend and by the routing facade.
//
// Paths handed to a concrete backend are always relative to the backend's
// root. The facade accepts drive-prefixed paths and strips the prefix before
// forwarding.
type ContentsManager interface {
	// Get returns the model at path. For directories the model carries the
	// child entries; includeContent controls whether file content (or
	// directory children) is populated.
	Get(ctx context.Context, path string, includeContent bool) (*ContentModel, error)

	// Save writes the model at path and returns the stored model without
	// content. A model of type directory creates a directory.
	Save(ctx context.Context, path string, model *ContentModel) (*ContentModel, error)

	// Delete removes the file or empty directory at path.
	Delete(ctx context.Context, path string) error

	// Rename moves oldPath to newPath within this backend.
	Rename(ctx context.Context, oldPath, newPath string) error

	// FileExists reports whether a regular file exists at path.
	FileExists(ctx context.Context, path string) (bool, error)

	// DirExists reports whether a directory exists at path.
	DirExists(ctx context.Context, path string) (bool, error)

	// Exists reports whether anything exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// IsHidden reports whether path is hidden on this backend.
	IsHidden(ctx context.Context, path string) (bool, error)

	// CreateCheckpoint snapshots the current state of the file at path.
	CreateCheckpoint(ctx context.Context, path string) (Checkpoint, error)

	// ListCheckpoints returns the checkpoints recorded for path, oldest
	// first.
	ListCheckpoints(ctx context.Context, path string) ([]Checkpoint, error)

	// RestoreCheckpoint replaces the file at path with the checkpointed
	// state.
	RestoreCheckpoint(ctx context.Context, path, checkpointID string) error

	// DeleteCheckpoint removes one checkpoint of path.
	DeleteCheckpoint(ctx context.Context, path, checkpointID string) error

	// Close releases resources held by the backend. The registry calls Close
	// on every manager dropped by a reconfiguration.
	Close() error

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI this backend was constructed from.
	LocationURI() string
}

// ManagerFactory creates contents managers from connection URIs.
type ManagerFactory interface {
	// ManagerFor creates a backend for the URI. The scheme selects the
	// backend implementation.
	ManagerFor(uri string) (ContentsManager, error)
}
