package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("/tmp", "gsu-dart-editor-archive-testing_unit-testing.lock"),
		lockPath("/tmp", "dart-editor-archive-testing", "unit-testing"))
	assert.Equal(t,
		filepath.Join("/tmp", "gsu-b_a_b_c.lock"),
		lockPath("/tmp", "b", "a/b:c"))
}

func TestLockIsExclusive(t *testing.T) {
	oldPoll := lockPollEvery
	lockPollEvery = 10 * time.Millisecond
	defer func() { lockPollEvery = oldPoll }()

	path := filepath.Join(t.TempDir(), "folder.lock")
	ctx := context.Background()

	first, err := acquireLock(ctx, path, time.Second)
	require.NoError(t, err)

	_, err = acquireLock(ctx, path, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, first.release())

	second, err := acquireLock(ctx, path, time.Second)
	require.NoError(t, err)
	assert.NoError(t, second.release())
}

func TestLockWaitsForRelease(t *testing.T) {
	oldPoll := lockPollEvery
	lockPollEvery = 10 * time.Millisecond
	defer func() { lockPollEvery = oldPoll }()

	path := filepath.Join(t.TempDir(), "folder.lock")
	ctx := context.Background()

	first, err := acquireLock(ctx, path, time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		first.release()
	}()

	second, err := acquireLock(ctx, path, 5*time.Second)
	require.NoError(t, err)
	assert.NoError(t, second.release())
}

func TestLockHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folder.lock")

	first, err := acquireLock(context.Background(), path, time.Second)
	require.NoError(t, err)
	defer first.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = acquireLock(ctx, path, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReleaseNil(t *testing.T) {
	var l *folderLock
	assert.NoError(t, l.release())
}

func TestFixtureSetupBlockedByLock(t *testing.T) {
	opts := testOptions(t, "b")
	opts.LockTimeout = 50 * time.Millisecond

	held, err := acquireLock(context.Background(), lockPath(opts.LockDir, opts.Bucket, opts.Folder), time.Second)
	require.NoError(t, err)
	defer held.release()

	f := NewFixture(&stubStorage{}, opts)
	err = f.Setup(context.Background())
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.NoError(t, f.Teardown(context.Background()))
}
