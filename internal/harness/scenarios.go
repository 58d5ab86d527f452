package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kumasuke/gsu/internal/gsutil"
	"github.com/kumasuke/gsu/internal/platform"
)

// AssertionFailure reports that a scenario observed the wrong result.
type AssertionFailure struct {
	Scenario string
	Message  string
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.Scenario, e.Message)
}

// Case is what a scenario runs against.
type Case struct {
	// Name labels assertion failures.
	Name    string
	Fixture *Fixture
	// Wrapper is the configuration resolved from the environment, before
	// any overrides.
	Wrapper platform.WrapperConfig
}

func (c *Case) failf(format string, args ...any) error {
	return &AssertionFailure{Scenario: c.Name, Message: fmt.Sprintf(format, args...)}
}

func (c *Case) expectLen(objects []string, want int, what string) error {
	if len(objects) != want {
		return c.failf("expected %d objects matching %s, got %d: %v", want, what, len(objects), objects)
	}
	return nil
}

// Scenario is one named integration check.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, c *Case) error
}

// Scenarios returns every scenario in execution order.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "initialization", Description: "wrapper configuration follows the PATH and build-server rules", Run: checkInitialization},
		{Name: "read-bucket", Description: "the folder lists exactly the populated objects", Run: checkReadBucket},
		{Name: "copy-object", Description: "a copied object appears under its new name", Run: checkCopyObject},
		{Name: "remove-object", Description: "a cleared folder lists no objects", Run: checkRemoveObject},
		{Name: "get-acl", Description: "an existing object has a non-empty ACL", Run: checkGetAcl},
		{Name: "get-acl-missing", Description: "reading the ACL of a missing object fails", Run: checkGetAclMissing},
		{Name: "read-bucket-idempotent", Description: "listing twice returns the same objects", Run: checkReadBucketIdempotent},
	}
}

// Lookup returns the scenario called name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

func checkInitialization(_ context.Context, c *Case) error {
	w := c.Wrapper
	if w.DryRun {
		return c.failf("resolved configuration has dry run enabled")
	}

	if w.FoundOnPath {
		if w.UseShell {
			return c.failf("tool found on PATH at %s but shell mode is on", w.Binary)
		}
		if !strings.HasPrefix(filepath.Base(w.Binary), platform.ToolName) {
			return c.failf("tool found on PATH at %s does not look like %s", w.Binary, platform.ToolName)
		}
		return nil
	}

	if want := platform.BuildServerPath(w.Family); w.Binary != want {
		return c.failf("expected build-server path %s, got %s", want, w.Binary)
	}
	if want := w.Family == platform.FamilyWindows; w.UseShell != want {
		return c.failf("expected shell mode %t for %s, got %t", want, w.Family, w.UseShell)
	}
	return nil
}

func checkReadBucket(ctx context.Context, c *Case) error {
	search := "/" + c.Fixture.Folder() + "/"
	objects, err := c.Fixture.FindInBucket(ctx, search)
	if err != nil {
		return err
	}
	return c.expectLen(objects, c.Fixture.BuildCount(), search)
}

func checkCopyObject(ctx context.Context, c *Case) error {
	const from, to = "-2-", "-22-"

	objects, err := c.Fixture.FindInBucket(ctx, from)
	if err != nil {
		return err
	}
	if err := c.expectLen(objects, 1, from); err != nil {
		return err
	}

	dst := strings.Replace(objects[0], from, to, 1)
	if err := c.Fixture.Client().Copy(ctx, objects[0], dst, false); err != nil {
		return err
	}

	objects, err = c.Fixture.FindInBucket(ctx, to)
	if err != nil {
		return err
	}
	if err := c.expectLen(objects, 1, to); err != nil {
		return err
	}
	if !strings.Contains(objects[0], to) {
		return c.failf("copied object %s does not contain %s", objects[0], to)
	}
	return nil
}

func checkRemoveObject(ctx context.Context, c *Case) error {
	if err := c.Fixture.CleanFolder(ctx); err != nil {
		return err
	}

	search := "/" + c.Fixture.Folder() + "/"
	objects, err := c.Fixture.FindInBucket(ctx, search)
	if err != nil {
		return err
	}
	return c.expectLen(objects, 0, search)
}

func checkGetAcl(ctx context.Context, c *Case) error {
	const search = "-2-"

	objects, err := c.Fixture.FindInBucket(ctx, search)
	if err != nil {
		return err
	}
	if err := c.expectLen(objects, 1, search); err != nil {
		return err
	}

	text, err := c.Fixture.Client().GetAcl(ctx, objects[0])
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return c.failf("ACL of %s is empty", objects[0])
	}
	return nil
}

func checkGetAclMissing(ctx context.Context, c *Case) error {
	uri := c.Fixture.FolderURI() + "/gsutilTest-missing.txt"

	_, err := c.Fixture.Client().GetAcl(ctx, uri)
	var invocationErr *gsutil.ToolInvocationError
	if !errors.As(err, &invocationErr) {
		return c.failf("expected a tool invocation error for %s, got %v", uri, err)
	}
	return nil
}

func checkReadBucketIdempotent(ctx context.Context, c *Case) error {
	pattern := c.Fixture.FolderURI() + "/*"

	first, err := c.Fixture.Client().ReadBucket(ctx, pattern)
	if err != nil {
		return err
	}
	second, err := c.Fixture.Client().ReadBucket(ctx, pattern)
	if err != nil {
		return err
	}
	if !slices.Equal(first, second) {
		return c.failf("listing changed between calls: %v then %v", first, second)
	}
	return nil
}
