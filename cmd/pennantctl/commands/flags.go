package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pennant-io/pennant/pkg/flags"
)

var (
	flagPutFile string
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Manage flag definitions",
}

var flagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant's flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := newClient().Flags(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list flags: %w", err)
		}
		return printJSON(defs)
	},
}

var flagsGetCmd = &cobra.Command{
	Use:   "get <flag-id>",
	Short: "Get one flag definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := newClient().Flag(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get flag: %w", err)
		}
		return printJSON(def)
	},
}

var flagsPutCmd = &cobra.Command{
	Use:   "put <flag-id>",
	Short: "Create or replace a flag from a JSON file",
	Long: `Create or replace a flag. The definition is read from --file, or from
stdin when --file is "-" or omitted.

Examples:
  pennantctl flags put new-dashboard --file flag.json
  cat flag.json | pennantctl flags put new-dashboard`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(flagPutFile)
		if err != nil {
			return err
		}

		var def flags.Definition
		if err := json.Unmarshal(data, &def); err != nil {
			return fmt.Errorf("invalid flag JSON: %w", err)
		}
		if def.ID == "" {
			def.ID = args[0]
		}

		stored, warnings, err := newClient().PutFlag(context.Background(), def)
		if err != nil {
			return fmt.Errorf("failed to put flag: %w", err)
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
		}
		return printJSON(stored)
	},
}

var flagsToggleCmd = &cobra.Command{
	Use:   "toggle <flag-id> <on|off>",
	Short: "Enable or disable a flag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[1] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}

		stored, _, err := newClient().UpdateFlag(context.Background(), args[0], flags.Patch{Enabled: &enabled})
		if err != nil {
			return fmt.Errorf("failed to toggle flag: %w", err)
		}
		return printJSON(stored)
	},
}

var flagsDeleteCmd = &cobra.Command{
	Use:   "delete <flag-id>",
	Short: "Delete a flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteFlag(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete flag: %w", err)
		}
		fmt.Printf("Deleted flag '%s'\n", args[0])
		return nil
	},
}

// readInput reads a JSON payload from path, or stdin when path is empty
// or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func init() {
	rootCmd.AddCommand(flagsCmd)
	flagsCmd.AddCommand(flagsListCmd)
	flagsCmd.AddCommand(flagsGetCmd)
	flagsCmd.AddCommand(flagsPutCmd)
	flagsCmd.AddCommand(flagsToggleCmd)
	flagsCmd.AddCommand(flagsDeleteCmd)

	flagsPutCmd.Flags().StringVar(&flagPutFile, "file", "", "Path to the flag definition JSON (default stdin)")
}
