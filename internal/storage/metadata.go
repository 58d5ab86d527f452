package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

// Metadata manages bucket and object metadata using SQLite.
type Metadata struct {
	db *sql.DB
}

// NewMetadata creates a new metadata store.
func NewMetadata(dbPath string) (*Metadata, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create metadata directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer per process; other processes wait on busy_timeout.
	db.SetMaxOpenConns(1)

	m := &Metadata{db: db}
	if err := m.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return m, nil
}

func (m *Metadata) initialize() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS buckets (
			name TEXT PRIMARY KEY,
			creation_date DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create buckets table: %w", err)
	}

	_, err = m.db.Exec(`
		CREATE TABLE IF NOT EXISTS objects (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			size INTEGER NOT NULL,
			last_modified DATETIME NOT NULL,
			etag TEXT NOT NULL,
			content_type TEXT NOT NULL,
			acl TEXT,
			PRIMARY KEY (bucket, key),
			FOREIGN KEY (bucket) REFERENCES buckets(name) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create objects table: %w", err)
	}

	return nil
}

// CreateBucket creates a new bucket.
func (m *Metadata) CreateBucket(ctx context.Context, name string, creationDate time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO buckets (name, creation_date) VALUES (?, ?)
	`, name, creationDate)
	return err
}

// BucketExists checks if a bucket exists.
func (m *Metadata) BucketExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PutObject stores object metadata. An existing row is replaced and its ACL
// reset to aclXML.
func (m *Metadata) PutObject(ctx context.Context, obj *Object, aclXML string) error {
	var aclValue any
	if aclXML != "" {
		aclValue = aclXML
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO objects (bucket, key, size, last_modified, etag, content_type, acl)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, obj.Bucket, obj.Key, obj.Size, obj.LastModified, obj.ETag, obj.ContentType, aclValue)
	return err
}

// GetObject returns object metadata, or nil if the object does not exist.
func (m *Metadata) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	obj := Object{Bucket: bucket}
	err := m.db.QueryRowContext(ctx, `
		SELECT key, size, last_modified, etag, content_type
		FROM objects WHERE bucket = ? AND key = ?
	`, bucket, key).Scan(&obj.Key, &obj.Size, &obj.LastModified, &obj.ETag, &obj.ContentType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// DeleteObject deletes object metadata and reports whether a row existed.
func (m *Metadata) DeleteObject(ctx context.Context, bucket, key string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM objects WHERE bucket = ? AND key = ?`, bucket, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListObjects returns objects matching a prefix ordered by key.
func (m *Metadata) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	// substr avoids LIKE wildcards inside user supplied prefixes
	rows, err := m.db.QueryContext(ctx, `
		SELECT key, size, last_modified, etag, content_type
		FROM objects
		WHERE bucket = ? AND substr(key, 1, ?) = ?
		ORDER BY key
	`, bucket, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	objects := []Object{}
	for rows.Next() {
		obj := Object{Bucket: bucket}
		if err := rows.Scan(&obj.Key, &obj.Size, &obj.LastModified, &obj.ETag, &obj.ContentType); err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// GetObjectACL returns the stored ACL document of an object. The boolean is
// false when the object does not exist; an empty string means the default ACL.
func (m *Metadata) GetObjectACL(ctx context.Context, bucket, key string) (string, bool, error) {
	var aclXML sql.NullString
	err := m.db.QueryRowContext(ctx, `
		SELECT acl FROM objects WHERE bucket = ? AND key = ?
	`, bucket, key).Scan(&aclXML)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return aclXML.String, true, nil
}

// PutObjectACL stores the ACL document of an object.
func (m *Metadata) PutObjectACL(ctx context.Context, bucket, key, aclXML string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE objects SET acl = ? WHERE bucket = ? AND key = ?
	`, aclXML, bucket, key)
	return err
}

// Close closes the database connection.
func (m *Metadata) Close() error {
	return m.db.Close()
}
