// Package harness drives a storage tool wrapper through integration
// scenarios. Each scenario runs against a Fixture: a test folder in a
// shared bucket that is cleared and populated with dummy objects before
// the scenario and released after it.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kumasuke/gsu/internal/config"
	"github.com/rs/zerolog/log"
)

// ErrTornDown is returned when a fixture is used after Teardown.
var ErrTornDown = errors.New("fixture has been torn down")

// Storage is the part of the wrapper client the harness drives.
type Storage interface {
	ReadBucket(ctx context.Context, pattern string) ([]string, error)
	Copy(ctx context.Context, src, dst string, metadataOnly bool) error
	Remove(ctx context.Context, uri string) error
	GetAcl(ctx context.Context, uri string) (string, error)
}

// Options configures a Fixture.
type Options struct {
	Prefix     string
	Bucket     string
	Folder     string
	BuildCount int

	// CleanupOnTeardown clears the folder after each scenario. Off by
	// default so the last scenario's objects stay around for inspection.
	CleanupOnTeardown bool
	// UniqueFolder appends a random suffix to Folder for every fixture.
	UniqueFolder bool

	LockDir     string
	LockTimeout time.Duration

	// TempDir holds temporary fixture files. Empty means os.TempDir.
	TempDir string
}

// OptionsFromConfig builds fixture options from the gsu configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Prefix:            cfg.Bucket.Prefix,
		Bucket:            cfg.Bucket.Name,
		Folder:            cfg.Bucket.Folder,
		BuildCount:        cfg.Bucket.BuildCount,
		CleanupOnTeardown: cfg.Harness.CleanupOnTeardown,
		UniqueFolder:      cfg.Harness.UniqueFolder,
		LockDir:           cfg.Harness.LockDir,
		LockTimeout:       cfg.Harness.LockTimeout,
	}
}

// Fixture owns the test folder for the duration of one scenario.
type Fixture struct {
	opts   Options
	folder string
	client Storage
	lock   *folderLock
}

// NewFixture creates a fixture driving client.
func NewFixture(client Storage, opts Options) *Fixture {
	folder := opts.Folder
	if opts.UniqueFolder {
		folder = folder + "-" + uuid.NewString()
	}
	return &Fixture{opts: opts, folder: folder, client: client}
}

// Client returns the wrapper client, or nil after Teardown.
func (f *Fixture) Client() Storage {
	return f.client
}

// Folder returns the folder name, including any unique suffix.
func (f *Fixture) Folder() string {
	return f.folder
}

// BuildCount returns the number of objects Setup creates.
func (f *Fixture) BuildCount() int {
	return f.opts.BuildCount
}

// FolderURI returns <prefix><bucket>/<folder>.
func (f *Fixture) FolderURI() string {
	return fmt.Sprintf("%s%s/%s", f.opts.Prefix, f.opts.Bucket, f.folder)
}

// Setup locks the folder, clears it and populates it with BuildCount
// dummy objects.
func (f *Fixture) Setup(ctx context.Context) error {
	if f.client == nil {
		return ErrTornDown
	}

	lockDir := f.opts.LockDir
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	lock, err := acquireLock(ctx, lockPath(lockDir, f.opts.Bucket, f.folder), f.opts.LockTimeout)
	if err != nil {
		return err
	}
	f.lock = lock

	log.Info().Str("folder", f.FolderURI()).Int("build_count", f.opts.BuildCount).Msg("Setting up test folder")

	if err := f.CleanFolder(ctx); err != nil {
		return fmt.Errorf("failed to clean %s: %w", f.FolderURI(), err)
	}
	if err := f.SetupFolder(ctx); err != nil {
		return fmt.Errorf("failed to populate %s: %w", f.FolderURI(), err)
	}
	return nil
}

// Teardown optionally clears the folder, releases the lock and drops the
// client. It is safe to call after a failed Setup.
func (f *Fixture) Teardown(ctx context.Context) error {
	var errs []error

	if f.opts.CleanupOnTeardown && f.client != nil && f.lock != nil {
		if err := f.CleanFolder(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to clean %s: %w", f.FolderURI(), err))
		}
	}

	if err := f.lock.release(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release folder lock: %w", err))
	}
	f.lock = nil
	f.client = nil

	log.Info().Str("folder", f.FolderURI()).Msg("Tore down test folder")
	return errors.Join(errs...)
}

// FindInBucket lists the folder and returns the URIs containing search.
func (f *Fixture) FindInBucket(ctx context.Context, search string) ([]string, error) {
	if f.client == nil {
		return nil, ErrTornDown
	}

	objects, err := f.client.ReadBucket(ctx, f.FolderURI()+"/*")
	if err != nil {
		return nil, err
	}

	matches := []string{}
	for _, obj := range objects {
		if strings.Contains(obj, search) {
			matches = append(matches, obj)
		}
	}
	return matches, nil
}

// CleanFolder removes every object in the folder.
func (f *Fixture) CleanFolder(ctx context.Context) error {
	if f.client == nil {
		return ErrTornDown
	}

	objects, err := f.client.ReadBucket(ctx, f.FolderURI()+"/*")
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := f.client.Remove(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// SetupFolder uploads dummy objects with ids 1 to BuildCount.
func (f *Fixture) SetupFolder(ctx context.Context) error {
	for id := 1; id <= f.opts.BuildCount; id++ {
		if err := f.PopulateBucket(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// PopulateBucket uploads one dummy object tagged with id. The local
// temporary file is removed whether or not the upload succeeds.
func (f *Fixture) PopulateBucket(ctx context.Context, id int) error {
	if f.client == nil {
		return ErrTornDown
	}

	file, err := os.CreateTemp(f.opts.TempDir, fmt.Sprintf("gsutilTest-%d-*.txt", id))
	if err != nil {
		return fmt.Errorf("failed to create fixture file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := fmt.Fprintf(file, "test file %d", id); err != nil {
		file.Close()
		return fmt.Errorf("failed to write fixture file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write fixture file: %w", err)
	}

	dst := f.FolderURI() + "/" + filepath.Base(file.Name())
	log.Debug().Str("src", file.Name()).Str("dst", dst).Msg("Uploading fixture object")
	return f.client.Copy(ctx, file.Name(), dst, false)
}
