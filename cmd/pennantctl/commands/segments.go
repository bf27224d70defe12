package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var segmentExpression string

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Manage segment expressions",
}

var segmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant's segments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		segments, err := newClient().Segments(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list segments: %w", err)
		}
		return printJSON(segments)
	},
}

var segmentsPutCmd = &cobra.Command{
	Use:   "put <segment-id>",
	Short: "Create or replace a segment",
	Long: `Create or replace a segment expression.

Examples:
  pennantctl segments put beta-users --expression 'user.beta == true'
  pennantctl segments put germans --expression 'geo.country == "DE"'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if segmentExpression == "" {
			return fmt.Errorf("--expression is required")
		}
		if err := newClient().PutSegment(context.Background(), args[0], segmentExpression); err != nil {
			return fmt.Errorf("failed to put segment: %w", err)
		}
		fmt.Printf("Stored segment '%s'\n", args[0])
		return nil
	},
}

var segmentsDeleteCmd = &cobra.Command{
	Use:   "delete <segment-id>",
	Short: "Delete a segment and strip it from every flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteSegment(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete segment: %w", err)
		}
		fmt.Printf("Deleted segment '%s'\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(segmentsCmd)
	segmentsCmd.AddCommand(segmentsListCmd)
	segmentsCmd.AddCommand(segmentsPutCmd)
	segmentsCmd.AddCommand(segmentsDeleteCmd)

	segmentsPutCmd.Flags().StringVar(&segmentExpression, "expression", "", "Segment expression")
}
