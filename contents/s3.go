package contents

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/ruteri/multifs-backend/interfaces"
)

// S3Manager implements a contents manager using Amazon S3 or compatible
// services. Files map to object keys; directories are represented by
// zero-byte placeholder objects with a trailing slash and by common
// prefixes in listings. Rename is a server-side copy followed by a delete.
type S3Manager struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Manager creates a new S3 contents manager.
// If accessKey and secretKey are provided, requests are authenticated.
// Otherwise, the bucket is assumed to be publicly accessible.
func NewS3Manager(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Manager, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}
	if accessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", accessKey, bucketName, prefix, region)
		if endpoint != "" {
			uri += fmt.Sprintf("&endpoint=%s", endpoint)
		}
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		// Custom endpoints are usually S3-compatible services that need
		// path-style addressing.
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	} else {
		log.Warn("No S3 credentials provided - write operations may fail unless bucket is public writable")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Manager{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      strings.TrimSuffix(prefix, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

// key maps a backend-relative path onto an object key.
func (m *S3Manager) key(rel string) string {
	if m.prefix == "" {
		return rel
	}
	if rel == "" {
		return m.prefix
	}
	return path.Join(m.prefix, rel)
}

// dirKey is the listing prefix for a directory path, "" for the root of an
// unprefixed bucket.
func (m *S3Manager) dirKey(rel string) string {
	k := m.key(rel)
	if k == "" {
		return ""
	}
	return k + "/"
}

// isNotFound detects missing-object errors from the S3 API.
func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "NoSuchKey") ||
		strings.Contains(err.Error(), "NotFound") ||
		strings.Contains(err.Error(), "404")
}

// Get returns the model at path.
func (m *S3Manager) Get(ctx context.Context, p string, includeContent bool) (*interfaces.ContentModel, error) {
	rel := normalizePath(p)

	isDir, err := m.DirExists(ctx, p)
	if err != nil {
		return nil, err
	}
	if isDir {
		return m.getDir(ctx, rel, includeContent)
	}
	return m.getFile(ctx, p, rel, includeContent)
}

func (m *S3Manager) getFile(ctx context.Context, p, rel string, includeContent bool) (*interfaces.ContentModel, error) {
	start := time.Now()

	result, err := m.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(m.key(rel)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	data := buf.Bytes()

	model := &interfaces.ContentModel{
		Name:     path.Base(rel),
		Path:     rel,
		Type:     interfaces.FileType,
		Mimetype: mime.TypeByExtension(path.Ext(rel)),
		Size:     int64(len(data)),
		Writable: true,
	}
	if result.LastModified != nil {
		model.Created = *result.LastModified
		model.LastModified = *result.LastModified
	}
	if includeContent {
		model.Format, model.Content = encodeContent(data)
	}

	m.log.Debug("Fetched object from S3",
		slog.String("bucket", m.bucketName),
		slog.String("key", m.key(rel)),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return model, nil
}

func (m *S3Manager) getDir(ctx context.Context, rel string, includeContent bool) (*interfaces.ContentModel, error) {
	name := path.Base(rel)
	if rel == "" {
		name = ""
	}
	model := &interfaces.ContentModel{
		Name:     name,
		Path:     rel,
		Type:     interfaces.DirectoryType,
		Writable: true,
	}
	if !includeContent {
		return model, nil
	}

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(m.bucketName),
		Prefix:    aws.String(m.dirKey(rel)),
		Delimiter: aws.String("/"),
	}
	err := m.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, cp := range page.CommonPrefixes {
			sub := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, m.dirKey(rel)), "/")
			if sub == "" || sub == checkpointDir {
				continue
			}
			model.Entries = append(model.Entries, interfaces.ContentModel{
				Name:     sub,
				Path:     path.Join(rel, sub),
				Type:     interfaces.DirectoryType,
				Writable: true,
			})
		}
		for _, obj := range page.Contents {
			sub := strings.TrimPrefix(*obj.Key, m.dirKey(rel))
			if sub == "" {
				// The directory placeholder itself.
				continue
			}
			entry := interfaces.ContentModel{
				Name:     sub,
				Path:     path.Join(rel, sub),
				Type:     interfaces.FileType,
				Mimetype: mime.TypeByExtension(path.Ext(sub)),
				Writable: true,
			}
			if obj.Size != nil {
				entry.Size = *obj.Size
			}
			if obj.LastModified != nil {
				entry.Created = *obj.LastModified
				entry.LastModified = *obj.LastModified
			}
			model.Entries = append(model.Entries, entry)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in S3: %w", err)
	}

	sort.Slice(model.Entries, func(i, j int) bool {
		return model.Entries[i].Name < model.Entries[j].Name
	})
	return model, nil
}

// Save writes the model at path.
func (m *S3Manager) Save(ctx context.Context, p string, model *interfaces.ContentModel) (*interfaces.ContentModel, error) {
	rel := normalizePath(p)

	if model.Type == interfaces.DirectoryType {
		_, err := m.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(m.bucketName),
			Key:    aws.String(m.dirKey(rel)),
			Body:   bytes.NewReader(nil),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create directory marker in S3: %w", err)
		}
		return m.Get(ctx, p, false)
	}

	data, err := decodeContent(model)
	if err != nil {
		return nil, err
	}

	_, err = m.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(m.key(rel)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object to S3: %w", err)
	}

	m.log.Debug("Stored object in S3",
		slog.String("bucket", m.bucketName),
		slog.String("key", m.key(rel)),
		slog.Int("size", len(data)))

	return m.Get(ctx, p, false)
}

// Delete removes the object or empty directory marker at path.
func (m *S3Manager) Delete(ctx context.Context, p string) error {
	rel := normalizePath(p)

	if ok, err := m.FileExists(ctx, p); err != nil {
		return err
	} else if ok {
		_, err := m.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucketName),
			Key:    aws.String(m.key(rel)),
		})
		if err != nil {
			return fmt.Errorf("failed to delete object from S3: %w", err)
		}
		m.deleteCheckpointObjects(ctx, rel)
		return nil
	}

	isDir, err := m.DirExists(ctx, p)
	if err != nil {
		return err
	}
	if !isDir {
		return fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
	}

	children, err := m.listKeys(ctx, m.dirKey(rel))
	if err != nil {
		return err
	}
	for _, k := range children {
		if k != m.dirKey(rel) {
			return fmt.Errorf("directory not empty: %s", p)
		}
	}

	_, err = m.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(m.dirKey(rel)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete directory marker from S3: %w", err)
	}
	return nil
}

// Rename moves oldPath to newPath via server-side copy and delete. Directory
// renames copy every object under the old prefix.
func (m *S3Manager) Rename(ctx context.Context, oldPath, newPath string) error {
	oldRel := normalizePath(oldPath)
	newRel := normalizePath(newPath)

	if ok, err := m.Exists(ctx, newPath); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", interfaces.ErrExists, newPath)
	}

	if ok, err := m.FileExists(ctx, oldPath); err != nil {
		return err
	} else if ok {
		if err := m.copyObject(ctx, m.key(oldRel), m.key(newRel)); err != nil {
			return err
		}
		_, err := m.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucketName),
			Key:    aws.String(m.key(oldRel)),
		})
		if err != nil {
			return fmt.Errorf("failed to delete source object after rename: %w", err)
		}
		return nil
	}

	isDir, err := m.DirExists(ctx, oldPath)
	if err != nil {
		return err
	}
	if !isDir {
		return fmt.Errorf("%w: %s", interfaces.ErrNotFound, oldPath)
	}

	keys, err := m.listKeys(ctx, m.dirKey(oldRel))
	if err != nil {
		return err
	}
	for _, k := range keys {
		dst := m.dirKey(newRel) + strings.TrimPrefix(k, m.dirKey(oldRel))
		if err := m.copyObject(ctx, k, dst); err != nil {
			return err
		}
	}
	for _, k := range keys {
		_, err := m.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucketName),
			Key:    aws.String(k),
		})
		if err != nil {
			return fmt.Errorf("failed to delete source object after rename: %w", err)
		}
	}
	return nil
}

// FileExists reports whether an object exists at path.
func (m *S3Manager) FileExists(ctx context.Context, p string) (bool, error) {
	rel := normalizePath(p)
	if rel == "" {
		return false, nil
	}
	_, err := m.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(m.key(rel)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head object in S3: %w", err)
	}
	return true, nil
}

// DirExists reports whether a directory exists at path: either a placeholder
// object or at least one key under the prefix.
func (m *S3Manager) DirExists(ctx context.Context, p string) (bool, error) {
	rel := normalizePath(p)
	if rel == "" {
		return true, nil
	}

	out, err := m.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(m.bucketName),
		Prefix:  aws.String(m.dirKey(rel)),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list objects in S3: %w", err)
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// Exists reports whether anything exists at path.
func (m *S3Manager) Exists(ctx context.Context, p string) (bool, error) {
	if ok, err := m.FileExists(ctx, p); err != nil || ok {
		return ok, err
	}
	return m.DirExists(ctx, p)
}

// IsHidden reports whether any component of path starts with a dot.
func (m *S3Manager) IsHidden(ctx context.Context, p string) (bool, error) {
	return isDotPath(p), nil
}

// checkpointKey builds the object key holding one checkpoint of a path.
func (m *S3Manager) checkpointKey(rel, id string) string {
	return m.key(path.Join(checkpointDir, rel, id))
}

// CreateCheckpoint snapshots the object at path via a server-side copy.
func (m *S3Manager) CreateCheckpoint(ctx context.Context, p string) (interfaces.Checkpoint, error) {
	rel := normalizePath(p)

	if ok, err := m.FileExists(ctx, p); err != nil {
		return interfaces.Checkpoint{}, err
	} else if !ok {
		return interfaces.Checkpoint{}, fmt.Errorf("%w: %s", interfaces.ErrNotFound, p)
	}

	id := uuid.NewString()
	if err := m.copyObject(ctx, m.key(rel), m.checkpointKey(rel, id)); err != nil {
		return interfaces.Checkpoint{}, err
	}

	m.log.Debug("Created checkpoint in S3",
		slog.String("path", rel),
		slog.String("checkpoint_id", id))

	return interfaces.Checkpoint{ID: id, LastModified: time.Now()}, nil
}

// ListCheckpoints returns the checkpoints recorded for path, oldest first.
func (m *S3Manager) ListCheckpoints(ctx context.Context, p string) ([]interfaces.Checkpoint, error) {
	rel := normalizePath(p)
	prefix := m.key(path.Join(checkpointDir, rel)) + "/"

	checkpoints := []interfaces.Checkpoint{}
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(m.bucketName),
		Prefix: aws.String(prefix),
	}
	err := m.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			cp := interfaces.Checkpoint{ID: strings.TrimPrefix(*obj.Key, prefix)}
			if obj.LastModified != nil {
				cp.LastModified = *obj.LastModified
			}
			checkpoints = append(checkpoints, cp)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints in S3: %w", err)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].LastModified.Before(checkpoints[j].LastModified)
	})
	return checkpoints, nil
}

// RestoreCheckpoint replaces the object at path with the checkpointed copy.
func (m *S3Manager) RestoreCheckpoint(ctx context.Context, p, checkpointID string) error {
	rel := normalizePath(p)

	src := m.checkpointKey(rel, checkpointID)
	if _, err := m.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(src),
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s@%s", interfaces.ErrCheckpointNotFound, p, checkpointID)
		}
		return fmt.Errorf("failed to head checkpoint in S3: %w", err)
	}

	return m.copyObject(ctx, src, m.key(rel))
}

// DeleteCheckpoint removes one checkpoint of path.
func (m *S3Manager) DeleteCheckpoint(ctx context.Context, p, checkpointID string) error {
	rel := normalizePath(p)

	src := m.checkpointKey(rel, checkpointID)
	if _, err := m.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(src),
	}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s@%s", interfaces.ErrCheckpointNotFound, p, checkpointID)
		}
		return fmt.Errorf("failed to head checkpoint in S3: %w", err)
	}

	_, err := m.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucketName),
		Key:    aws.String(src),
	})
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint from S3: %w", err)
	}
	return nil
}

// Close releases resources held by the manager. The S3 client keeps no
// persistent connections that need an explicit shutdown.
func (m *S3Manager) Close() error {
	return nil
}

// Name returns a unique identifier for this manager.
func (m *S3Manager) Name() string {
	return fmt.Sprintf("s3-%s", m.bucketName)
}

// LocationURI returns the URI that identifies this manager.
func (m *S3Manager) LocationURI() string {
	return m.locationURI
}

// copyObject performs a server-side copy within the bucket.
func (m *S3Manager) copyObject(ctx context.Context, src, dst string) error {
	_, err := m.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(m.bucketName),
		CopySource: aws.String(m.bucketName + "/" + src),
		Key:        aws.String(dst),
	})
	if err != nil {
		return fmt.Errorf("failed to copy object in S3: %w", err)
	}
	return nil
}

// listKeys returns every object key under a prefix.
func (m *S3Manager) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(m.bucketName),
		Prefix: aws.String(prefix),
	}
	err := m.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects in S3: %w", err)
	}
	return keys, nil
}

// deleteCheckpointObjects best-effort removes the checkpoints of a deleted
// file.
func (m *S3Manager) deleteCheckpointObjects(ctx context.Context, rel string) {
	keys, err := m.listKeys(ctx, m.key(path.Join(checkpointDir, rel))+"/")
	if err != nil {
		m.log.Debug("Failed to list checkpoints for cleanup", "err", err)
		return
	}
	for _, k := range keys {
		_, err := m.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucketName),
			Key:    aws.String(k),
		})
		if err != nil {
			m.log.Debug("Failed to delete checkpoint object", slog.String("key", k), "err", err)
		}
	}
}
