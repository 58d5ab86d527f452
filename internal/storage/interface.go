// Package storage provides the backends behind the gsfake storage tool.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/kumasuke/gsu/internal/acl"
)

// Storage errors.
var (
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrBucketAlreadyExists = errors.New("bucket already exists")
	ErrObjectNotFound      = errors.New("object not found")
	ErrInvalidBucketName   = errors.New("invalid bucket name")
	ErrInvalidKey          = errors.New("invalid object key")
)

// Object represents a stored object.
type Object struct {
	Bucket       string
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
}

// ObjectData represents object data for reading.
type ObjectData struct {
	Object
	Body io.ReadCloser
}

// Storage defines the interface for storage backends.
type Storage interface {
	CreateBucket(ctx context.Context, name string) error

	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (*Object, error)
	GetObject(ctx context.Context, bucket, key string) (*ObjectData, error)
	HeadObject(ctx context.Context, bucket, key string) (*Object, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	// CopyObject copies an object. With preserveACL the destination gets the
	// source's ACL, otherwise the default ACL.
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string, preserveACL bool) (*Object, error)
	// ListObjects returns the objects whose key starts with prefix, ordered by key.
	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)

	GetObjectACL(ctx context.Context, bucket, key string) (*acl.Policy, error)
	PutObjectACL(ctx context.Context, bucket, key string, policy *acl.Policy) error

	// Close releases storage resources.
	Close() error
}
