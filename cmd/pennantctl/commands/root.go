package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pennant-io/pennant/pkg/client"
	"github.com/pennant-io/pennant/pkg/flags"
)

var (
	// Global flags
	serverURL string
	token     string
	app       string
	env       string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pennantctl",
	Short: "CLI for managing pennant feature flags",
	Long: `pennantctl manages flags, segments and credentials on a pennant node.

The server address and credential can also come from the PENNANT_SERVER and
PENNANT_TOKEN environment variables.

Examples:
  pennantctl flags list --app shop --env production
  pennantctl flags put new-dashboard --file flag.json
  pennantctl segments put beta-users --expression 'user.beta == true'
  pennantctl sync env --target staging
  pennantctl evaluate new-dashboard --id user-456
  pennantctl token --role editor --ttl 24h`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("PENNANT_SERVER", "http://localhost:8080"), "Base URL of the pennant API")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("PENNANT_TOKEN"), "Bearer credential (management token, evaluation token or API key)")
	rootCmd.PersistentFlags().StringVar(&app, "app", flags.DefaultApp, "Application id")
	rootCmd.PersistentFlags().StringVar(&env, "env", flags.DefaultEnv, "Environment id")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newClient builds an API client from the global flags.
func newClient() *client.Client {
	return client.New(serverURL,
		client.WithToken(token),
		client.WithTenant(app, env),
	)
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
