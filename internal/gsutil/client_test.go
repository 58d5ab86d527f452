package gsutil

import (
	"context"
	"errors"
	"testing"

	"github.com/kumasuke/gsu/internal/acl"
	"github.com/kumasuke/gsu/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// scriptedRunner returns queued results and records every call.
type scriptedRunner struct {
	calls   []call
	results []Result
	err     error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args []string) (Result, error) {
	r.calls = append(r.calls, call{name: name, args: append([]string(nil), args...)})
	if r.err != nil {
		return Result{ExitCode: -1}, r.err
	}
	if len(r.results) == 0 {
		return Result{}, nil
	}
	res := r.results[0]
	r.results = r.results[1:]
	return res, nil
}

func newTestClient(runner Runner) *Client {
	return New(platform.WrapperConfig{Binary: "/usr/bin/gsutil", Family: platform.FamilyPosix}, runner)
}

func TestReadBucket(t *testing.T) {
	runner := &scriptedRunner{results: []Result{{
		Stdout: []byte("gs://b/f/a-1-x.txt\n\n  gs://b/f/a-2-x.txt \ngs://b/f/a-1-x.txt\n"),
	}}}
	client := newTestClient(runner)

	objects, err := client.ReadBucket(context.Background(), "gs://b/f/*")
	require.NoError(t, err)

	// order and duplicates are preserved
	assert.Equal(t, []string{"gs://b/f/a-1-x.txt", "gs://b/f/a-2-x.txt", "gs://b/f/a-1-x.txt"}, objects)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "/usr/bin/gsutil", runner.calls[0].name)
	assert.Equal(t, []string{"ls", "gs://b/f/*"}, runner.calls[0].args)
}

func TestReadBucketEmpty(t *testing.T) {
	client := newTestClient(&scriptedRunner{results: []Result{{}}})

	objects, err := client.ReadBucket(context.Background(), "gs://b/f/*")
	require.NoError(t, err)
	assert.NotNil(t, objects)
	assert.Empty(t, objects)
}

func TestReadBucketNoMatchIsEmpty(t *testing.T) {
	client := newTestClient(&scriptedRunner{results: []Result{{
		Stderr:   []byte("CommandException: One or more URLs matched no objects.\n"),
		ExitCode: 1,
	}}})

	objects, err := client.ReadBucket(context.Background(), "gs://b/f/*")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestReadBucketFailure(t *testing.T) {
	client := newTestClient(&scriptedRunner{results: []Result{{
		Stderr:   []byte("AccessDeniedException: 403\n"),
		ExitCode: 1,
	}}})

	_, err := client.ReadBucket(context.Background(), "gs://b/f/*")
	require.Error(t, err)

	var invErr *ToolInvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, "ls", invErr.Op)
	assert.Equal(t, 1, invErr.ExitCode)
	assert.Equal(t, "AccessDeniedException: 403", invErr.Stderr)
}

func TestCopy(t *testing.T) {
	runner := &scriptedRunner{}
	client := newTestClient(runner)

	require.NoError(t, client.Copy(context.Background(), "/tmp/a.txt", "gs://b/f/a.txt", false))
	require.NoError(t, client.Copy(context.Background(), "gs://b/f/a.txt", "gs://b/f/c.txt", true))

	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"cp", "/tmp/a.txt", "gs://b/f/a.txt"}, runner.calls[0].args)
	assert.Equal(t, []string{"cp", "-p", "gs://b/f/a.txt", "gs://b/f/c.txt"}, runner.calls[1].args)
}

func TestCopyFailure(t *testing.T) {
	client := newTestClient(&scriptedRunner{results: []Result{{
		Stderr:   []byte("CommandException: No URLs matched: gs://b/f/missing\n"),
		ExitCode: 1,
	}}})

	err := client.Copy(context.Background(), "gs://b/f/missing", "gs://b/f/dst", false)

	// the no-match tolerance only applies to listings
	var invErr *ToolInvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, "cp", invErr.Op)
}

func TestRemove(t *testing.T) {
	runner := &scriptedRunner{results: []Result{{}, {ExitCode: 1, Stderr: []byte("NotFoundException: 404")}}}
	client := newTestClient(runner)

	require.NoError(t, client.Remove(context.Background(), "gs://b/f/a.txt"))
	assert.Equal(t, []string{"rm", "gs://b/f/a.txt"}, runner.calls[0].args)

	err := client.Remove(context.Background(), "gs://b/f/a.txt")
	var invErr *ToolInvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, "rm", invErr.Op)
	assert.Contains(t, invErr.Error(), "NotFoundException")
}

func TestGetAcl(t *testing.T) {
	doc, err := acl.Marshal(acl.Default("owner", "owner"))
	require.NoError(t, err)

	runner := &scriptedRunner{results: []Result{{Stdout: doc}}}
	client := newTestClient(runner)

	text, err := client.GetAcl(context.Background(), "gs://b/f/a.txt")
	require.NoError(t, err)
	assert.Equal(t, string(doc), text)
	assert.Equal(t, []string{"acl", "get", "gs://b/f/a.txt"}, runner.calls[0].args)

	policy, err := ParseACL(text)
	require.NoError(t, err)
	assert.True(t, policy.HasGrant("owner", acl.PermissionFullControl))
}

func TestGetAclEmptyOutput(t *testing.T) {
	client := newTestClient(&scriptedRunner{results: []Result{{Stdout: []byte("\n")}}})

	_, err := client.GetAcl(context.Background(), "gs://b/f/a.txt")
	var invErr *ToolInvocationError
	require.True(t, errors.As(err, &invErr))
	assert.ErrorIs(t, err, acl.ErrEmptyDocument)
}

func TestRunnerStartFailure(t *testing.T) {
	startErr := errors.New("exec: not found")
	client := newTestClient(&scriptedRunner{err: startErr})

	_, err := client.ReadBucket(context.Background(), "gs://b/f/*")
	var invErr *ToolInvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, -1, invErr.ExitCode)
	assert.ErrorIs(t, err, startErr)
}

func TestDryRunSkipsMutations(t *testing.T) {
	runner := &scriptedRunner{}
	client := New(platform.WrapperConfig{Binary: "gsutil", DryRun: true}, runner)

	require.NoError(t, client.Copy(context.Background(), "a", "gs://b/a", false))
	require.NoError(t, client.Remove(context.Background(), "gs://b/a"))
	assert.Empty(t, runner.calls)

	_, err := client.ReadBucket(context.Background(), "gs://b/*")
	require.NoError(t, err)
	assert.Len(t, runner.calls, 1)
}

func TestShellWrapping(t *testing.T) {
	tests := []struct {
		name string
		cfg  platform.WrapperConfig
		want call
	}{
		{
			name: "direct",
			cfg:  platform.WrapperConfig{Binary: "/usr/bin/gsutil", Family: platform.FamilyPosix},
			want: call{name: "/usr/bin/gsutil", args: []string{"rm", "gs://b/x"}},
		},
		{
			name: "windows shell",
			cfg:  platform.WrapperConfig{Binary: platform.WindowsBuildServerPath, UseShell: true, Family: platform.FamilyWindows},
			want: call{name: "cmd", args: []string{"/c", platform.WindowsBuildServerPath, "rm", "gs://b/x"}},
		},
		{
			name: "posix shell",
			cfg:  platform.WrapperConfig{Binary: "/opt/gsutil", UseShell: true, Family: platform.FamilyPosix},
			want: call{name: "/bin/sh", args: []string{"-c", `"$0" "$@"`, "/opt/gsutil", "rm", "gs://b/x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{}
			require.NoError(t, New(tt.cfg, runner).Remove(context.Background(), "gs://b/x"))
			require.Len(t, runner.calls, 1)
			assert.Equal(t, tt.want, runner.calls[0])
		})
	}
}
