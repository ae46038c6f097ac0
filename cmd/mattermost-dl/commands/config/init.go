package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmdl/mattermost-dl/internal/cli/prompt"
	"github.com/mmdl/mattermost-dl/pkg/config"
)

var (
	initOutput string
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented sample configuration file",
	Long: `Write a commented sample configuration file to edit into your own.

Examples:
  # Write to the default discovery location
  mattermost-dl config init

  # Write next to the archives
  mattermost-dl config init --output ./mattermost-dl.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "", "Output file (default: the discovery location)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file without asking")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := initOutput
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		if !initForce {
			overwrite, err := prompt.Confirm(fmt.Sprintf("%s already exists; overwrite it?", path), false)
			if err != nil {
				return err
			}
			if !overwrite {
				return nil
			}
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove existing config: %w", err)
		}
	}

	if err := config.WriteSample(path); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Sample configuration written to %s\n", path)
	return nil
}
