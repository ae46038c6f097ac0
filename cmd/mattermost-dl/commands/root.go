// Package commands implements the mattermost-dl command line
// interface.
package commands

import (
	"github.com/spf13/cobra"

	configcmd "github.com/mmdl/mattermost-dl/cmd/mattermost-dl/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command. Called without a subcommand it
// runs a download, which is what the tool exists for.
var rootCmd = &cobra.Command{
	Use:   "mattermost-dl",
	Short: "Incremental Mattermost channel archiver",
	Long: `mattermost-dl downloads the message history of the channels you are
a member of into per-channel archive files, and on later runs extends
those archives with only the posts that arrived since.

Without a subcommand it behaves like "mattermost-dl download".

Use "mattermost-dl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDownload,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./mattermost-dl.{yaml,json,toml}, then $XDG_CONFIG_HOME, then ~/.config)")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
