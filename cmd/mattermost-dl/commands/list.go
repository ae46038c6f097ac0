package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmdl/mattermost-dl/internal/bytesize"
	"github.com/mmdl/mattermost-dl/internal/cli/output"
	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/config"
)

var (
	listOutput string
	listDir    string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the channel archives in the output directory",
	Long: `List every channel archive found in the output directory, backup
slots included, with the interval of history each one holds.

Examples:
  # List the archives of the configured output directory
  mattermost-dl list

  # List a specific directory as JSON
  mattermost-dl list --directory ./backup --output json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table|json|yaml)")
	listCmd.Flags().StringVar(&listDir, "directory", "", "Archive directory (default: the configured output directory)")
}

// archiveInfo is one row of the listing, in its serializable form.
type archiveInfo struct {
	Archive string `json:"archive"         yaml:"archive"`
	Channel string `json:"channel"         yaml:"channel"`
	Type    string `json:"type"            yaml:"type"`
	Team    string `json:"team,omitempty"  yaml:"team,omitempty"`
	Posts   int64  `json:"posts"           yaml:"posts"`
	Size    string `json:"size"            yaml:"size"`
	From    string `json:"from,omitempty"  yaml:"from,omitempty"`
	To      string `json:"to,omitempty"    yaml:"to,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listOutput)
	if err != nil {
		return err
	}

	dir := listDir
	if dir == "" {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return err
		}
		dir = cfg.Output.Directory
	}

	archives, err := archive.ListArchives(dir)
	if err != nil {
		return err
	}

	var infos []archiveInfo
	for _, files := range archives {
		header, err := files.LoadHeader()
		if err != nil {
			logger.Warn("Archive header cannot be loaded, skipped",
				logger.KeyPath, files.HeaderPath(), logger.KeyError, err)
			continue
		}
		info := archiveInfo{
			Archive: files.Stem,
			Channel: header.Channel.Name,
			Type:    header.Channel.Type.String(),
		}
		if info.Channel == "" {
			info.Channel = header.Channel.InternalName
		}
		if header.Team != nil {
			info.Team = header.Team.Name
		}
		if st := header.Storage; st != nil && st.Count > 0 {
			info.Posts = st.Count
			info.Size = bytesize.ByteSize(st.ByteSize).String()
			info.From = st.BeginTime.String()
			info.To = st.EndTime.String()
		} else {
			info.Size = "0B"
		}
		infos = append(infos, info)
	}

	if format != output.FormatTable {
		return output.Print(cmd.OutOrStdout(), format, infos)
	}

	table := output.NewTableData("ARCHIVE", "CHANNEL", "TYPE", "TEAM", "POSTS", "SIZE", "FROM", "TO")
	for _, info := range infos {
		table.AddRow(info.Archive, info.Channel, info.Type, info.Team,
			formatCount(info.Posts), info.Size, info.From, info.To)
	}
	return output.PrintTable(cmd.OutOrStdout(), table)
}

func formatCount(n int64) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}
