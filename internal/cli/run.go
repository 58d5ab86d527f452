package cli

import (
	"errors"
	"fmt"

	"github.com/kumasuke/gsu/internal/config"
	"github.com/kumasuke/gsu/internal/gsutil"
	"github.com/kumasuke/gsu/internal/harness"
	"github.com/kumasuke/gsu/internal/logging"
	"github.com/kumasuke/gsu/internal/platform"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// ErrScenariosFailed is returned by the run command when any scenario did
// not pass.
var ErrScenariosFailed = errors.New("one or more scenarios did not pass")

var (
	resolveHost = platform.ResolveHost
	// toolRunner executes the storage tool. Nil runs it as a child process.
	toolRunner gsutil.Runner
)

type commonFlags struct {
	configFile string
	toolPath   string
	dryRun     bool
	logLevel   string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&f.toolPath, "tool", "", "storage tool binary, overriding PATH resolution")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "log copy and remove instead of running them")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// load reads the configuration and applies flag overrides.
func (f *commonFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if f.toolPath != "" {
		cfg.Tool.Path = f.toolPath
	}
	if f.dryRun {
		cfg.Tool.DryRun = true
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	return cfg, nil
}

func overridesFrom(cfg *config.Config) platform.Overrides {
	return platform.Overrides{Binary: cfg.Tool.Path, DryRun: cfg.Tool.DryRun}
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var flags commonFlags
	var scenarios []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run integration scenarios against the storage tool",
		Long:  "Run integration scenarios against the storage tool. Every scenario runs unless --scenario is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(cmd, &flags, scenarios)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVarP(&scenarios, "scenario", "s", nil, "scenario to run (repeatable)")

	return cmd
}

func runHarness(cmd *cobra.Command, flags *commonFlags, scenarios []string) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging)

	resolved, err := resolveHost()
	if err != nil {
		return err
	}
	wrapper := resolved.Apply(overridesFrom(cfg))

	log.Info().
		Str("binary", wrapper.Binary).
		Bool("use_shell", wrapper.UseShell).
		Bool("dry_run", wrapper.DryRun).
		Str("bucket", cfg.Bucket.Name).
		Str("folder", cfg.Bucket.Folder).
		Msg("Running scenarios")

	runner := &harness.Runner{
		Client:  gsutil.New(wrapper, toolRunner),
		Wrapper: resolved,
		Options: harness.OptionsFromConfig(cfg),
	}

	report, err := runner.Run(cmd.Context(), scenarios)
	if err != nil {
		return err
	}
	if err := report.Write(cmd.OutOrStdout()); err != nil {
		return err
	}

	if !report.Passed() {
		return ErrScenariosFailed
	}
	return nil
}
