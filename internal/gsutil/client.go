// Package gsutil wraps the command-line object storage tool. Every
// operation is exactly one invocation of the tool.
package gsutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kumasuke/gsu/internal/acl"
	"github.com/kumasuke/gsu/internal/platform"
	"github.com/rs/zerolog/log"
)

// Tool subcommands.
const (
	cmdList   = "ls"
	cmdCopy   = "cp"
	cmdRemove = "rm"
	cmdACL    = "acl"
)

// Messages printed by gsutil when a listing pattern matches nothing.
var noMatchMarkers = []string{
	"matched no objects",
	"No URLs matched",
}

// ToolInvocationError reports a failed tool invocation.
type ToolInvocationError struct {
	Op       string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolInvocationError) Error() string {
	msg := fmt.Sprintf("gsutil %s failed (exit %d)", e.Op, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}

// Client invokes the storage tool described by a WrapperConfig.
type Client struct {
	cfg    platform.WrapperConfig
	runner Runner
}

// New creates a Client. A nil runner selects ExecRunner.
func New(cfg platform.WrapperConfig, runner Runner) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{cfg: cfg, runner: runner}
}

// Config returns the configuration the client was built with.
func (c *Client) Config() platform.WrapperConfig {
	return c.cfg
}

// ReadBucket lists the objects matching pattern. A pattern that matches
// nothing yields an empty list.
func (c *Client) ReadBucket(ctx context.Context, pattern string) ([]string, error) {
	res, err := c.invoke(ctx, cmdList, pattern)
	if err != nil {
		if isNoMatch(err) {
			return []string{}, nil
		}
		return nil, err
	}
	return splitLines(string(res.Stdout)), nil
}

// Copy copies src to dst. With metadataOnly the tool is asked to carry the
// source's metadata and ACL over to the destination.
func (c *Client) Copy(ctx context.Context, src, dst string, metadataOnly bool) error {
	args := []string{}
	if metadataOnly {
		args = append(args, "-p")
	}
	args = append(args, src, dst)

	if c.cfg.DryRun {
		log.Info().Str("src", src).Str("dst", dst).Msg("Dry run, skipping copy")
		return nil
	}
	_, err := c.invoke(ctx, cmdCopy, args...)
	return err
}

// Remove deletes the object at uri.
func (c *Client) Remove(ctx context.Context, uri string) error {
	if c.cfg.DryRun {
		log.Info().Str("uri", uri).Msg("Dry run, skipping remove")
		return nil
	}
	_, err := c.invoke(ctx, cmdRemove, uri)
	return err
}

// GetAcl returns the ACL document of uri as raw text.
func (c *Client) GetAcl(ctx context.Context, uri string) (string, error) {
	res, err := c.invoke(ctx, cmdACL, "get", uri)
	if err != nil {
		return "", err
	}

	text := string(res.Stdout)
	if strings.TrimSpace(text) == "" {
		return "", &ToolInvocationError{
			Op:       cmdACL,
			Args:     []string{"get", uri},
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(string(res.Stderr)),
			Err:      acl.ErrEmptyDocument,
		}
	}
	return text, nil
}

// ParseACL decodes the text returned by GetAcl.
func ParseACL(text string) (*acl.Policy, error) {
	return acl.Parse(text)
}

func (c *Client) invoke(ctx context.Context, op string, args ...string) (Result, error) {
	toolArgs := append([]string{op}, args...)
	name, argv := c.commandLine(toolArgs)

	log.Debug().
		Str("op", op).
		Str("binary", name).
		Strs("args", argv).
		Msg("Invoking storage tool")

	res, err := c.runner.Run(ctx, name, argv)
	if err != nil {
		log.Warn().Err(err).Str("op", op).Msg("Storage tool could not be run")
		return res, &ToolInvocationError{Op: op, Args: args, ExitCode: -1, Stderr: strings.TrimSpace(string(res.Stderr)), Err: err}
	}
	if res.ExitCode != 0 {
		invErr := &ToolInvocationError{
			Op:       op,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   strings.TrimSpace(string(res.Stderr)),
		}
		if !isNoMatch(invErr) {
			log.Warn().
				Str("op", op).
				Int("exit_code", res.ExitCode).
				Str("stderr", invErr.Stderr).
				Msg("Storage tool failed")
		}
		return res, invErr
	}
	return res, nil
}

// commandLine returns the program and arguments to run, wrapping the tool
// in the platform shell when the configuration asks for it.
func (c *Client) commandLine(toolArgs []string) (string, []string) {
	if !c.cfg.UseShell {
		return c.cfg.Binary, toolArgs
	}
	if c.cfg.Family == platform.FamilyWindows {
		return "cmd", append([]string{"/c", c.cfg.Binary}, toolArgs...)
	}
	return "/bin/sh", append([]string{"-c", `"$0" "$@"`, c.cfg.Binary}, toolArgs...)
}

func isNoMatch(err error) bool {
	var invErr *ToolInvocationError
	if !errors.As(err, &invErr) || invErr.Op != cmdList || invErr.Err != nil {
		return false
	}
	for _, marker := range noMatchMarkers {
		if strings.Contains(invErr.Stderr, marker) {
			return true
		}
	}
	return false
}

func splitLines(out string) []string {
	lines := []string{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
