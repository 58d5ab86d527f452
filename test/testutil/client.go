package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"runtime"
	"testing"

	"github.com/kumasuke/gsu/internal/gsutil"
	"github.com/kumasuke/gsu/internal/platform"
)

// Client returns a wrapper client whose invocations are served by ft.
func (ft *FakeTool) Client(t testing.TB) *gsutil.Client {
	t.Helper()

	return gsutil.New(WrapperConfig("gsfake"), ft)
}

// WrapperConfig returns a direct-exec configuration for binary on this host.
func WrapperConfig(binary string) platform.WrapperConfig {
	return platform.WrapperConfig{
		Binary:   binary,
		Family:   platform.FamilyOf(runtime.GOOS),
		Username: "tester",
	}
}

// RandomBucketName generates a random bucket name for testing.
func RandomBucketName() string {
	return "test-bucket-" + randomString(8)
}

// RandomFolderName generates a random folder name for testing.
func RandomFolderName() string {
	return "unit-testing-" + randomString(8)
}

func randomString(n int) string {
	b := make([]byte, n/2+1)
	rand.Read(b)
	return hex.EncodeToString(b)[:n]
}
