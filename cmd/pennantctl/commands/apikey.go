package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pennant-io/pennant/pkg/auth"
)

var apikeyCost int

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Generate an evaluation API key and its bcrypt hash",
	Long: `Generate a fresh API key. Hand the key to the caller and add the hash to
the server's PENNANT_AUTH_API_KEY_HASHES list. The key itself is never
stored and cannot be recovered from the hash.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		akm := auth.NewAPIKeyManager(apikeyCost)

		key, err := akm.GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		hash, err := akm.HashAPIKey(key)
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}

		fmt.Printf("API key: %s\n", key)
		fmt.Printf("Hash:    %s\n", hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)

	apikeyCmd.Flags().IntVar(&apikeyCost, "cost", 0, "bcrypt cost for the stored hash (0 uses the library default)")
}
