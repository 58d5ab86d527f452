// Package toolcli implements gsfake, a gsutil-compatible command line tool
// backed by a local directory or an S3-compatible service. It understands
// the subset of gsutil used by the wrapper: ls, cp, rm, acl and mb.
package toolcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kumasuke/gsu/internal/config"
	"github.com/kumasuke/gsu/internal/logging"
	"github.com/kumasuke/gsu/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "unknown"
)

// Opener opens the storage backend for one command.
type Opener func(ctx context.Context) (storage.Storage, error)

// commandError is printed to stderr verbatim, in gsutil's
// "<Kind>Exception: <message>" style.
type commandError struct {
	msg string
}

func (e *commandError) Error() string {
	return e.msg
}

func commandErrorf(format string, args ...any) error {
	return &commandError{msg: "CommandException: " + fmt.Sprintf(format, args...)}
}

// storageError converts a backend error into gsutil's wording for url.
func storageError(err error, url cloudURL) error {
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return &commandError{msg: fmt.Sprintf("NotFoundException: 404 %s does not exist.", url)}
	case errors.Is(err, storage.ErrBucketNotFound):
		return &commandError{msg: fmt.Sprintf("BucketNotFoundException: 404 %s://%s bucket does not exist.", url.Scheme, url.Bucket)}
	case errors.Is(err, storage.ErrBucketAlreadyExists):
		return &commandError{msg: fmt.Sprintf("ServiceException: 409 Bucket %s already exists.", url.Bucket)}
	case errors.Is(err, storage.ErrInvalidBucketName), errors.Is(err, storage.ErrInvalidKey):
		return &commandError{msg: fmt.Sprintf("BadRequestException: 400 Invalid argument for %s.", url)}
	default:
		return err
	}
}

// NewRootCmd creates the root command.
func NewRootCmd(open Opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gsfake",
		Short:         "gsfake - a gsutil-compatible fake storage tool",
		Long:          "gsfake answers the gsutil commands used by gsu from a local directory or an S3-compatible endpoint.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(newListCmd(open))
	rootCmd.AddCommand(newCopyCmd(open))
	rootCmd.AddCommand(newRemoveCmd(open))
	rootCmd.AddCommand(newACLCmd(open))
	rootCmd.AddCommand(newMakeBucketCmd(open))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Run executes the tool with args and returns the process exit code.
func Run(ctx context.Context, open Opener, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, NewRootCmd(open), args, stdout, stderr)
}

// Main runs gsfake with args and returns the exit code. The backend comes
// from the file named by --config, or from gsfake.yaml and GSFAKE_*
// variables when the flag is absent.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var (
		configFile string
		cfg        *config.FakeConfig
	)
	cmd := NewRootCmd(func(ctx context.Context) (storage.Storage, error) {
		return OpenFromConfig(cfg)(ctx)
	})
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: gsfake.yaml in ., /etc/gsfake or $HOME/.gsfake)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		var err error
		if configFile != "" {
			cfg, err = config.LoadFakeFromFile(configFile)
		} else {
			cfg, err = config.LoadFake()
		}
		if err != nil {
			return commandErrorf("failed to load config: %v", err)
		}

		logging.SetupWriter(cfg.Logging, stderr)
		log.Debug().Str("backend", cfg.Backend).Strs("args", args).Msg("gsfake invoked")
		return nil
	}

	return execute(ctx, cmd, args, stdout, stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) {
			fmt.Fprintln(stderr, cmdErr.msg)
		} else {
			fmt.Fprintf(stderr, "CommandException: %v\n", err)
		}
		return 1
	}
	return 0
}

// OpenFromConfig returns an Opener for the configured backend.
func OpenFromConfig(cfg *config.FakeConfig) Opener {
	return func(ctx context.Context) (storage.Storage, error) {
		switch cfg.Backend {
		case config.BackendLocal, "":
			return storage.NewFileSystem(cfg.Storage.DataDir, cfg.Storage.MetadataPath())
		case config.BackendS3:
			return storage.NewS3(ctx, storage.S3Config{
				Endpoint:  cfg.S3.Endpoint,
				Region:    cfg.S3.Region,
				AccessKey: cfg.S3.AccessKey,
				SecretKey: cfg.S3.SecretKey,
			})
		default:
			return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
		}
	}
}

// Execute runs gsfake for the current process and returns its exit code.
func Execute() int {
	return Main(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// withStorage opens the backend, runs fn and closes the backend.
func withStorage(ctx context.Context, open Opener, fn func(storage.Storage) error) error {
	store, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	return fn(store)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gsfake version %s (commit: %s)\n", Version, Commit)
		},
	}
}
