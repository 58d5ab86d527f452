package platform

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInfo struct {
	name string
	mode os.FileMode
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) Mode() os.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() any           { return nil }

type fakeSystem struct {
	env   map[string]string
	files map[string]os.FileMode
}

func (s fakeSystem) Getenv(key string) string {
	return s.env[key]
}

func (s fakeSystem) Stat(name string) (os.FileInfo, error) {
	mode, ok := s.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return fakeInfo{name: name, mode: mode}, nil
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyWindows, FamilyOf("windows"))
	assert.Equal(t, FamilyWindows, FamilyOf("Windows"))
	assert.Equal(t, FamilyWindows, FamilyOf("Microsoft"))
	assert.Equal(t, FamilyPosix, FamilyOf("linux"))
	assert.Equal(t, FamilyPosix, FamilyOf("darwin"))
	assert.Equal(t, FamilyPosix, FamilyOf(""))
}

func TestResolveMissingUsername(t *testing.T) {
	_, err := Resolve("linux", fakeSystem{env: map[string]string{"PATH": "/usr/bin"}})
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, ErrNoUsername))
}

func TestResolveUsernameFallback(t *testing.T) {
	cfg, err := Resolve("windows", fakeSystem{env: map[string]string{"USERNAME": "alice"}})
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Username)
	assert.False(t, cfg.Buildbot)

	cfg, err = Resolve("linux", fakeSystem{env: map[string]string{"USER": "chrome-bot", "USERNAME": "alice"}})
	require.NoError(t, err)
	assert.Equal(t, "chrome-bot", cfg.Username)
	assert.True(t, cfg.Buildbot)
}

func TestResolveFoundOnPath(t *testing.T) {
	sys := fakeSystem{
		env: map[string]string{
			"USER": "alice",
			"PATH": "/opt/empty::/usr/local/bin/:/usr/bin",
		},
		files: map[string]os.FileMode{
			"/opt/empty/gsutil":     os.ModeDir | 0o755,
			"/usr/local/bin/gsutil": 0o755,
			"/usr/bin/gsutil":       0o755,
		},
	}

	cfg, err := Resolve("linux", sys)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/gsutil", cfg.Binary)
	assert.True(t, cfg.FoundOnPath)
	assert.False(t, cfg.UseShell)
	assert.False(t, cfg.DryRun)
}

func TestResolveFoundOnWindowsPath(t *testing.T) {
	sys := fakeSystem{
		env: map[string]string{
			"USERNAME": "alice",
			"PATH":     `c:\tools;c:\sdk\bin\`,
		},
		files: map[string]os.FileMode{`c:\sdk\bin\gsutil.cmd`: 0o666},
	}

	cfg, err := Resolve("Windows", sys)
	require.NoError(t, err)
	assert.Equal(t, `c:\sdk\bin\gsutil.cmd`, cfg.Binary)
	assert.False(t, cfg.UseShell)
}

func TestResolveSkipsNonExecutable(t *testing.T) {
	sys := fakeSystem{
		env: map[string]string{
			"USER": "alice",
			"PATH": "/home/alice/bin:/usr/bin",
		},
		files: map[string]os.FileMode{
			"/home/alice/bin/gsutil": 0o644,
			"/usr/bin/gsutil":        0o755,
		},
	}

	cfg, err := Resolve("linux", sys)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/gsutil", cfg.Binary)

	delete(sys.files, "/usr/bin/gsutil")
	cfg, err = Resolve("linux", sys)
	require.NoError(t, err)
	assert.Equal(t, PosixBuildServerPath, cfg.Binary)
	assert.False(t, cfg.FoundOnPath)
}

func TestResolveWindowsPrefersCmdOverScript(t *testing.T) {
	sys := fakeSystem{
		env: map[string]string{
			"USERNAME": "alice",
			"PATH":     `c:\sdk\bin`,
		},
		files: map[string]os.FileMode{
			`c:\sdk\bin\gsutil`:     0o666,
			`c:\sdk\bin\gsutil.cmd`: 0o666,
		},
	}

	cfg, err := Resolve("windows", sys)
	require.NoError(t, err)
	assert.Equal(t, `c:\sdk\bin\gsutil.cmd`, cfg.Binary)
	assert.True(t, cfg.FoundOnPath)

	delete(sys.files, `c:\sdk\bin\gsutil.cmd`)
	cfg, err = Resolve("windows", sys)
	require.NoError(t, err)
	assert.Equal(t, WindowsBuildServerPath, cfg.Binary)
	assert.True(t, cfg.UseShell)
}

func TestResolveBuildServerFallback(t *testing.T) {
	tests := []struct {
		platform string
		binary   string
		useShell bool
	}{
		{platform: "linux", binary: PosixBuildServerPath, useShell: false},
		{platform: "darwin", binary: PosixBuildServerPath, useShell: false},
		{platform: "windows", binary: WindowsBuildServerPath, useShell: true},
		{platform: "Microsoft", binary: WindowsBuildServerPath, useShell: true},
	}

	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			sys := fakeSystem{env: map[string]string{"USER": "chrome-bot", "PATH": "/nowhere"}}
			cfg, err := Resolve(tt.platform, sys)
			require.NoError(t, err)
			assert.Equal(t, tt.binary, cfg.Binary)
			assert.Equal(t, tt.useShell, cfg.UseShell)
			assert.False(t, cfg.FoundOnPath)
			assert.False(t, cfg.DryRun)
		})
	}
}

func TestResolveRealFilesystem(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("execute permission bits are not reported on windows")
	}

	dir := t.TempDir()
	tool := filepath.Join(dir, ToolName)
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\nexit 0\n"), 0o644))

	sys := envOnly{env: map[string]string{"USER": "alice", "PATH": dir}}
	cfg, err := Resolve("linux", sys)
	require.NoError(t, err)
	assert.False(t, cfg.FoundOnPath, "a file without execute permission is not a tool")

	require.NoError(t, os.Chmod(tool, 0o755))
	cfg, err = Resolve("linux", sys)
	require.NoError(t, err)
	assert.Equal(t, tool, cfg.Binary)
}

// envOnly reads the environment from a map and the filesystem for real.
type envOnly struct {
	env map[string]string
	RealSystem
}

func (e envOnly) Getenv(key string) string {
	return e.env[key]
}

func TestApplyOverrides(t *testing.T) {
	cfg := WrapperConfig{Binary: "/usr/bin/gsutil", FoundOnPath: true}

	same := cfg.Apply(Overrides{})
	assert.Equal(t, cfg, same)

	changed := cfg.Apply(Overrides{Binary: "/opt/gsfake", DryRun: true})
	assert.Equal(t, "/opt/gsfake", changed.Binary)
	assert.True(t, changed.DryRun)
	assert.False(t, changed.FoundOnPath)

	// cfg itself is unchanged
	assert.Equal(t, "/usr/bin/gsutil", cfg.Binary)
	assert.False(t, cfg.DryRun)
}
