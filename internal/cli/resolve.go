package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewResolveCmd creates the resolve command.
func NewResolveCmd() *cobra.Command {
	var flags commonFlags

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print how the storage tool will be invoked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			resolved, err := resolveHost()
			if err != nil {
				return err
			}
			wrapper := resolved.Apply(overridesFrom(cfg))

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "family:        %s\n", wrapper.Family)
			fmt.Fprintf(out, "username:      %s\n", wrapper.Username)
			fmt.Fprintf(out, "buildbot:      %t\n", wrapper.Buildbot)
			fmt.Fprintf(out, "binary:        %s\n", wrapper.Binary)
			fmt.Fprintf(out, "found_on_path: %t\n", wrapper.FoundOnPath)
			fmt.Fprintf(out, "use_shell:     %t\n", wrapper.UseShell)
			fmt.Fprintf(out, "dry_run:       %t\n", wrapper.DryRun)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
