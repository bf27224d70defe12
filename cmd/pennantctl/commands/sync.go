package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	syncSource    string
	syncTarget    string
	syncOverwrite bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy flags and segments between environments",
}

var syncEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Sync a whole environment",
	Long: `Copy every flag and segment from the source environment into the target
environment within the same app. Copied flags land disabled unless
--overwrite is set; existing target entries are kept unless --overwrite.

Examples:
  pennantctl sync env --target staging
  pennantctl sync env --source production --target staging --overwrite`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncTarget == "" {
			return fmt.Errorf("--target is required")
		}
		summary, err := newClient().SyncEnv(context.Background(), syncSource, syncTarget, syncOverwrite)
		if err != nil {
			return fmt.Errorf("failed to sync environment: %w", err)
		}
		return printJSON(summary)
	},
}

var syncFlagCmd = &cobra.Command{
	Use:   "flag <flag-id>",
	Short: "Sync one flag and its referenced segments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncTarget == "" {
			return fmt.Errorf("--target is required")
		}
		summary, err := newClient().SyncFlag(context.Background(), args[0], syncSource, syncTarget, syncOverwrite)
		if err != nil {
			return fmt.Errorf("failed to sync flag: %w", err)
		}
		return printJSON(summary)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncEnvCmd)
	syncCmd.AddCommand(syncFlagCmd)

	for _, c := range []*cobra.Command{syncEnvCmd, syncFlagCmd} {
		c.Flags().StringVar(&syncSource, "source", "", "Source environment (default the --env environment)")
		c.Flags().StringVar(&syncTarget, "target", "", "Target environment")
		c.Flags().BoolVar(&syncOverwrite, "overwrite", false, "Replace existing target entries and keep enabled state")
	}
}
