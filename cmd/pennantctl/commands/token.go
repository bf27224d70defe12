package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pennant-io/pennant/pkg/auth"
)

var (
	tokenSecret   string
	tokenAudience string
	tokenSubject  string
	tokenRole     string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a JWT for the management or evaluation surface",
	Long: `Mint a signed token. The signing secret must match the server's
PENNANT_AUTH_JWT_SECRET; it is read from --secret or PENNANT_JWT_SECRET.

Management tokens carry a role; evaluation tokens carry the --app and
--env as tenant defaults.

Examples:
  pennantctl token --role editor --ttl 24h
  pennantctl token --audience evaluation --app shop --env production --ttl 720h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			return fmt.Errorf("no signing secret: set --secret or PENNANT_JWT_SECRET")
		}

		tm := auth.NewTokenManager(tokenSecret)

		var signed string
		var err error
		switch auth.Audience(tokenAudience) {
		case auth.AudienceManagement:
			signed, err = tm.GenerateManagementToken(tokenSubject, auth.Role(tokenRole), tokenTTL)
		case auth.AudienceEvaluation:
			signed, err = tm.GenerateEvaluationToken(tokenSubject, app, env, tokenTTL)
		default:
			return fmt.Errorf("unknown audience %q, want management or evaluation", tokenAudience)
		}
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}

		fmt.Println(signed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenSecret, "secret", os.Getenv("PENNANT_JWT_SECRET"), "HS256 signing secret")
	tokenCmd.Flags().StringVar(&tokenAudience, "audience", string(auth.AudienceManagement), "Token audience (management or evaluation)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "pennantctl", "Token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleViewer), "Management role (admin, editor or viewer)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
