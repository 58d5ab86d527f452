// Package platform resolves how the storage tool is invoked on this host.
package platform

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
)

// ToolName is the executable name searched for on PATH.
const ToolName = "gsutil"

// Build-server locations used when the tool is not on PATH.
const (
	WindowsBuildServerPath = `e:\b\build\scripts\slave\gsutil`
	PosixBuildServerPath   = "/b/build/scripts/slave/gsutil"
)

// buildbotPrefix marks the usernames of automated build machines.
const buildbotPrefix = "chrome"

// ErrNoUsername is returned when neither USER nor USERNAME is set.
var ErrNoUsername = errors.New("could not find the user name, tried environment variables USER and USERNAME")

// ConfigurationError reports that the harness cannot be configured.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Family is an operating system family.
type Family string

const (
	FamilyPosix   Family = "posix"
	FamilyWindows Family = "windows"
)

// FamilyOf maps a platform name to its family. Some Windows Vista hosts
// report "Microsoft" instead of "Windows", so that name is accepted too.
func FamilyOf(platformName string) Family {
	switch strings.ToLower(platformName) {
	case "windows", "microsoft":
		return FamilyWindows
	default:
		return FamilyPosix
	}
}

// WrapperConfig describes how the storage tool is invoked. It is resolved
// once and passed by value.
type WrapperConfig struct {
	Binary      string
	UseShell    bool
	DryRun      bool
	Family      Family
	Username    string
	Buildbot    bool
	FoundOnPath bool
}

// Overrides are user supplied settings applied after resolution.
type Overrides struct {
	Binary string
	DryRun bool
}

// Apply returns a copy of c with the overrides applied.
func (c WrapperConfig) Apply(o Overrides) WrapperConfig {
	if o.Binary != "" {
		c.Binary = o.Binary
		c.FoundOnPath = false
	}
	if o.DryRun {
		c.DryRun = true
	}
	return c
}

// System abstracts the environment reads performed during resolution.
type System interface {
	Getenv(key string) string
	Stat(name string) (os.FileInfo, error)
}

// RealSystem implements System using the process environment.
type RealSystem struct{}

// Getenv returns the value of the environment variable named by key.
func (RealSystem) Getenv(key string) string {
	return os.Getenv(key)
}

// Stat returns a FileInfo describing the named file.
func (RealSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// ResolveHost resolves the configuration for the running process.
func ResolveHost() (WrapperConfig, error) {
	return Resolve(runtime.GOOS, RealSystem{})
}

// Resolve produces the WrapperConfig for platformName using sys.
func Resolve(platformName string, sys System) (WrapperConfig, error) {
	family := FamilyOf(platformName)

	username := sys.Getenv("USER")
	if username == "" {
		username = sys.Getenv("USERNAME")
	}
	if username == "" {
		return WrapperConfig{}, &ConfigurationError{Reason: "unknown user", Err: ErrNoUsername}
	}

	cfg := WrapperConfig{
		Family:   family,
		Username: username,
		Buildbot: strings.HasPrefix(username, buildbotPrefix),
	}

	if found, ok := findOnPath(family, sys); ok {
		cfg.Binary = found
		cfg.FoundOnPath = true
		return cfg, nil
	}

	cfg.Binary = BuildServerPath(family)
	cfg.UseShell = family == FamilyWindows
	return cfg, nil
}

// BuildServerPath returns the fixed tool location on build machines.
func BuildServerPath(family Family) string {
	if family == FamilyWindows {
		return WindowsBuildServerPath
	}
	return PosixBuildServerPath
}

// findOnPath returns the first tool on PATH that the wrapper can start
// directly. Windows cannot start the extensionless shell script shipped
// next to gsutil.cmd, so only the listed extensions count there.
func findOnPath(family Family, sys System) (string, bool) {
	pathList := sys.Getenv("PATH")
	if pathList == "" {
		return "", false
	}

	sep, slash := ":", "/"
	names := []string{ToolName}
	if family == FamilyWindows {
		sep, slash = ";", `\`
		names = []string{ToolName + ".exe", ToolName + ".bat", ToolName + ".cmd"}
	}

	for _, dir := range strings.Split(pathList, sep) {
		if dir == "" {
			continue
		}
		for _, name := range names {
			candidate := strings.TrimRight(dir, slash) + slash + name
			info, err := sys.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			if family == FamilyPosix && info.Mode().Perm()&0o111 == 0 {
				continue
			}
			return candidate, true
		}
	}
	return "", false
}
