package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/kumasuke/gsu/internal/config"
	"github.com/kumasuke/gsu/internal/gsutil"
	"github.com/kumasuke/gsu/internal/toolcli"
)

// FakeTool runs gsfake in-process. It implements gsutil.Runner and ignores
// the binary name it is asked to run.
type FakeTool struct {
	t       testing.TB
	DataDir string

	open toolcli.Opener

	mu    sync.Mutex
	calls [][]string
}

// NewFakeTool creates a gsfake instance backed by a fresh local data
// directory, with the given buckets already created.
func NewFakeTool(t testing.TB, buckets ...string) *FakeTool {
	t.Helper()

	dataDir, err := os.MkdirTemp("", "gsfake-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	cfg := config.DefaultFakeConfig()
	cfg.Storage.DataDir = dataDir
	cfg.Storage.MetadataDB = filepath.Join(dataDir, "metadata.db")

	ft := &FakeTool{
		t:       t,
		DataDir: dataDir,
		open:    toolcli.OpenFromConfig(cfg),
	}
	t.Cleanup(ft.Cleanup)

	for _, bucket := range buckets {
		ft.MustRun("mb", "gs://"+bucket)
	}
	return ft
}

// Run implements gsutil.Runner.
func (ft *FakeTool) Run(ctx context.Context, name string, args []string) (gsutil.Result, error) {
	ft.mu.Lock()
	ft.calls = append(ft.calls, append([]string(nil), args...))
	ft.mu.Unlock()

	var stdout, stderr bytes.Buffer
	code := toolcli.Run(ctx, ft.open, args, &stdout, &stderr)
	return gsutil.Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: code}, nil
}

// MustRun runs gsfake with args and fails the test on a non-zero exit.
func (ft *FakeTool) MustRun(args ...string) string {
	ft.t.Helper()

	res, _ := ft.Run(context.Background(), "gsfake", args)
	if res.ExitCode != 0 {
		ft.t.Fatalf("gsfake %s: exit %d: %s", strings.Join(args, " "), res.ExitCode, res.Stderr)
	}
	return string(res.Stdout)
}

// Calls returns the argument lists of every invocation so far.
func (ft *FakeTool) Calls() [][]string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([][]string(nil), ft.calls...)
}

// CallsTo returns the invocations whose first argument is command.
func (ft *FakeTool) CallsTo(command string) [][]string {
	var out [][]string
	for _, call := range ft.Calls() {
		if len(call) > 0 && call[0] == command {
			out = append(out, call)
		}
	}
	return out
}

// Cleanup removes the data directory.
func (ft *FakeTool) Cleanup() {
	if ft.DataDir != "" {
		if err := os.RemoveAll(ft.DataDir); err != nil {
			ft.t.Logf("failed to remove %s: %v", ft.DataDir, err)
		}
		ft.DataDir = ""
	}
}

