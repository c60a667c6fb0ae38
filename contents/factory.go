package contents

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/multifs-backend/interfaces"
)

// Factory creates contents managers from connection URI strings.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a new factory instance that can create contents managers.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{log: logger}
}

// ManagerFor creates a contents manager from a connection URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// or osfs:// - Local filesystem storage
//   - mem:// - In-memory storage
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS mutable files over the HTTP API
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *Factory) ManagerFor(uri string) (interfaces.ContentsManager, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidResourceURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file", "osfs":
		return f.createLocalManager(u)
	case "mem":
		return f.createMemoryManager(u)
	case "s3":
		return f.createS3Manager(u)
	case "ipfs":
		return f.createIPFSManager(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidResourceURI, u.Scheme)
	}
}

// createLocalManager creates a local filesystem manager.
// URI format: file:///absolute/path or osfs://./relative/path
func (f *Factory) createLocalManager(u *url.URL) (interfaces.ContentsManager, error) {
	f.log.Debug("Creating local manager", slog.String("uri", u.String()))

	// Merge host and path so that both file:///abs and osfs://rel/ative work.
	root := u.Path
	if u.Host != "" {
		root = u.Host + "/" + strings.TrimPrefix(root, "/")
	}
	if root == "" {
		return nil, fmt.Errorf("%w: empty path in %s URI", interfaces.ErrInvalidResourceURI, u.Scheme)
	}

	return NewLocalManager(root, f.log)
}

// createMemoryManager creates an in-memory manager.
// URI format: mem://name
func (f *Factory) createMemoryManager(u *url.URL) (interfaces.ContentsManager, error) {
	f.log.Debug("Creating memory manager", slog.String("uri", u.String()))
	return NewMemoryManager(u.String(), f.log), nil
}

// createS3Manager creates an S3 or S3-compatible manager.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=http://custom.s3.com
func (f *Factory) createS3Manager(u *url.URL) (interfaces.ContentsManager, error) {
	f.log.Debug("Creating S3 manager", slog.String("uri", u.String()))

	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("%w: missing bucket in s3 URI", interfaces.ErrInvalidResourceURI)
	}
	prefix := strings.TrimPrefix(u.Path, "/")

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := query.Get("endpoint")

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
		f.log.Debug("Using embedded credentials for write access")
	} else {
		f.log.Debug("No credentials provided, S3 bucket assumed to be public, write operations may fail")
	}

	return NewS3Manager(bucket, prefix, region, endpoint, accessKey, secretKey, f.log)
}

// createIPFSManager creates an IPFS manager backed by the mutable files API.
// URI format: ipfs://host:port/base/path
func (f *Factory) createIPFSManager(u *url.URL) (interfaces.ContentsManager, error) {
	f.log.Debug("Creating IPFS manager", slog.String("uri", u.String()))

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	return NewIPFSManager(host, port, u.Path, f.log)
}
