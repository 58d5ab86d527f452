package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kumasuke/gsu/internal/acl"
)

// FileSystem implements Storage using the local file system.
type FileSystem struct {
	dataDir  string
	metadata *Metadata
	owner    acl.Owner
}

// NewFileSystem creates a new file system storage backend.
func NewFileSystem(dataDir string, metadataDB string) (*FileSystem, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	metadata, err := NewMetadata(metadataDB)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &FileSystem{
		dataDir:  dataDir,
		metadata: metadata,
		owner:    acl.Owner{ID: acl.DefaultOwnerID, DisplayName: acl.DefaultOwnerDisplay},
	}, nil
}

// CreateBucket creates a new bucket.
func (fs *FileSystem) CreateBucket(ctx context.Context, name string) error {
	if !validBucketName(name) {
		return ErrInvalidBucketName
	}

	exists, err := fs.metadata.BucketExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return ErrBucketAlreadyExists
	}

	if err := os.MkdirAll(filepath.Join(fs.dataDir, name), 0755); err != nil {
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}

	return fs.metadata.CreateBucket(ctx, name, time.Now())
}

// PutObject stores an object. The object gets the default ACL.
func (fs *FileSystem) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (*Object, error) {
	objectPath, err := fs.objectPath(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(objectPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create object directory: %w", err)
	}

	// Write to a temporary file first so readers never see partial content
	tmpPath := filepath.Join(fs.dataDir, bucket, ".tmp-"+uuid.NewString())
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	hash := md5.New()
	written, err := io.Copy(io.MultiWriter(file, hash), body)
	file.Close()
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if size >= 0 && written != size {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("short write: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, objectPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename file: %w", err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	obj := &Object{
		Bucket:       bucket,
		Key:          key,
		Size:         written,
		LastModified: time.Now().UTC(),
		ETag:         `"` + hex.EncodeToString(hash.Sum(nil)) + `"`,
		ContentType:  contentType,
	}

	if err := fs.metadata.PutObject(ctx, obj, ""); err != nil {
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}

	return obj, nil
}

// GetObject retrieves an object.
func (fs *FileSystem) GetObject(ctx context.Context, bucket, key string) (*ObjectData, error) {
	obj, err := fs.HeadObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(fs.dataDir, bucket, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &ObjectData{Object: *obj, Body: file}, nil
}

// HeadObject returns object metadata.
func (fs *FileSystem) HeadObject(ctx context.Context, bucket, key string) (*Object, error) {
	if err := fs.requireBucket(ctx, bucket); err != nil {
		return nil, err
	}

	obj, err := fs.metadata.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, ErrObjectNotFound
	}
	return obj, nil
}

// DeleteObject deletes an object. Deleting a missing object is an error.
func (fs *FileSystem) DeleteObject(ctx context.Context, bucket, key string) error {
	objectPath, err := fs.objectPath(ctx, bucket, key)
	if err != nil {
		return err
	}

	existed, err := fs.metadata.DeleteObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	if !existed {
		return ErrObjectNotFound
	}

	if err := os.Remove(objectPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	fs.pruneEmptyDirs(bucket, filepath.Dir(objectPath))

	return nil
}

// CopyObject copies an object.
func (fs *FileSystem) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string, preserveACL bool) (*Object, error) {
	src, err := fs.GetObject(ctx, srcBucket, srcKey)
	if err != nil {
		return nil, err
	}
	defer src.Body.Close()

	var aclXML string
	if preserveACL {
		aclXML, _, err = fs.metadata.GetObjectACL(ctx, srcBucket, srcKey)
		if err != nil {
			return nil, err
		}
	}

	obj, err := fs.PutObject(ctx, dstBucket, dstKey, src.Body, src.Size, src.ContentType)
	if err != nil {
		return nil, err
	}

	if aclXML != "" {
		if err := fs.metadata.PutObjectACL(ctx, dstBucket, dstKey, aclXML); err != nil {
			return nil, fmt.Errorf("failed to copy ACL: %w", err)
		}
	}

	return obj, nil
}

// ListObjects lists objects whose key starts with prefix.
func (fs *FileSystem) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	if err := fs.requireBucket(ctx, bucket); err != nil {
		return nil, err
	}
	return fs.metadata.ListObjects(ctx, bucket, prefix)
}

// GetObjectACL returns the ACL for an object.
func (fs *FileSystem) GetObjectACL(ctx context.Context, bucket, key string) (*acl.Policy, error) {
	if err := fs.requireBucket(ctx, bucket); err != nil {
		return nil, err
	}

	aclXML, found, err := fs.metadata.GetObjectACL(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrObjectNotFound
	}

	// Return default ACL if none set
	if aclXML == "" {
		return acl.Default(fs.owner.ID, fs.owner.DisplayName), nil
	}
	return acl.Parse(aclXML)
}

// PutObjectACL stores the ACL for an object.
func (fs *FileSystem) PutObjectACL(ctx context.Context, bucket, key string, policy *acl.Policy) error {
	if _, err := fs.HeadObject(ctx, bucket, key); err != nil {
		return err
	}

	doc, err := acl.Marshal(policy)
	if err != nil {
		return err
	}
	return fs.metadata.PutObjectACL(ctx, bucket, key, string(doc))
}

// Close releases the metadata database.
func (fs *FileSystem) Close() error {
	return fs.metadata.Close()
}

func (fs *FileSystem) requireBucket(ctx context.Context, bucket string) error {
	exists, err := fs.metadata.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBucketNotFound
	}
	return nil
}

// objectPath validates bucket and key and returns the on-disk location.
func (fs *FileSystem) objectPath(ctx context.Context, bucket, key string) (string, error) {
	if err := fs.requireBucket(ctx, bucket); err != nil {
		return "", err
	}
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(fs.dataDir, bucket, filepath.FromSlash(key)), nil
}

// pruneEmptyDirs removes empty parent directories up to the bucket root.
func (fs *FileSystem) pruneEmptyDirs(bucket, dir string) {
	root := filepath.Join(fs.dataDir, bucket)
	for dir != root && strings.HasPrefix(dir, root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func validBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
		default:
			return false
		}
	}
	return true
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasPrefix(key, ".tmp-") {
		return false
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." || segment == "." {
			return false
		}
	}
	return true
}
