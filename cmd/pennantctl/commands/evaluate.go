package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pennant-io/pennant/pkg/client"
)

var (
	evalID   string
	evalUser string
	evalPage string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [flag-id]",
	Short: "Evaluate flags for a caller context",
	Long: `Evaluate every flag, or a single flag when a flag id is given.

Examples:
  pennantctl evaluate --id user-456
  pennantctl evaluate new-dashboard --id user-456
  pennantctl evaluate button-color --id alice --user '{"plan":"pro"}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := client.EvalInput{ID: evalID}
		if evalUser != "" {
			var user map[string]any
			if err := json.Unmarshal([]byte(evalUser), &user); err != nil {
				return fmt.Errorf("invalid user JSON: %w", err)
			}
			in.User = user
		}
		if evalPage != "" {
			var page map[string]any
			if err := json.Unmarshal([]byte(evalPage), &page); err != nil {
				return fmt.Errorf("invalid page JSON: %w", err)
			}
			in.Page = page
		}

		ctx := context.Background()
		if len(args) == 1 {
			res, err := newClient().EvaluateFlag(ctx, args[0], in)
			if err != nil {
				return fmt.Errorf("failed to evaluate flag: %w", err)
			}
			return printJSON(res)
		}

		results, err := newClient().Evaluate(ctx, in)
		if err != nil {
			return fmt.Errorf("failed to evaluate flags: %w", err)
		}
		return printJSON(results)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalID, "id", "", "Caller identity used for bucketing")
	evaluateCmd.Flags().StringVar(&evalUser, "user", "", "User attributes as JSON")
	evaluateCmd.Flags().StringVar(&evalPage, "page", "", "Page attributes as JSON")
}
