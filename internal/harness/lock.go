package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrLockTimeout is returned when another run holds the folder lock for
// longer than the configured timeout.
var ErrLockTimeout = errors.New("timed out waiting for folder lock")

var lockPollEvery = 100 * time.Millisecond

type folderLock struct {
	file *os.File
}

// lockPath returns the lock file guarding bucket/folder inside dir.
func lockPath(dir, bucket, folder string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, bucket+"_"+folder)
	return filepath.Join(dir, "gsu-"+name+".lock")
}

// acquireLock opens or creates path and takes an exclusive advisory lock,
// polling until timeout elapses or ctx is done.
func acquireLock(ctx context.Context, path string, timeout time.Duration) (*folderLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		acquired, err := tryLock(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if acquired {
			return &folderLock{file: file}, nil
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, fmt.Errorf("%w %s after %s", ErrLockTimeout, path, timeout)
		}

		select {
		case <-ctx.Done():
			_ = file.Close()
			return nil, ctx.Err()
		case <-time.After(lockPollEvery):
		}
	}
}

// release unlocks and closes the lock file.
func (l *folderLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := unlock(l.file); err != nil {
		_ = l.file.Close()
		return err
	}
	err := l.file.Close()
	l.file = nil
	return err
}
