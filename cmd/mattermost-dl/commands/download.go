package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mmdl/mattermost-dl/internal/cli/prompt"
	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/config"
	"github.com/mmdl/mattermost-dl/pkg/mmclient"
	"github.com/mmdl/mattermost-dl/pkg/recovery"
	"github.com/mmdl/mattermost-dl/pkg/saver"
)

var (
	verbose     bool
	redownload  bool
	interactive bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download or extend the channel archives",
	Long: `Download the configured channels into the output directory.

Channels that already have an archive are extended with the posts that
arrived since the previous run. Use --redownload to discard existing
archives and fetch everything again.

Examples:
  # Download with the discovered configuration file
  mattermost-dl download

  # Download with an explicit configuration file
  mattermost-dl download --config ./mattermost-dl.yaml

  # Ask on every data-losing recovery decision
  mattermost-dl download --interactive`,
	RunE: runDownload,
}

func init() {
	// Persistent so the bare root invocation accepts them too.
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&redownload, "redownload", false, "Discard existing archives and download from scratch")
	rootCmd.PersistentFlags().BoolVar(&interactive, "interactive", false, "Prompt before any data-losing recovery action")
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Token auth needs no password; otherwise one may be prompted for
	// so the config file can stay free of secrets.
	if cfg.Connection.Token == "" && cfg.Connection.Password == "" {
		password, err := prompt.Password("Password for " + cfg.Connection.Username)
		if err != nil {
			return err
		}
		cfg.Connection.Password = password
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []mmclient.Option
	if cfg.Connection.Token != "" {
		opts = append(opts, mmclient.WithToken(cfg.Connection.Token))
	}
	if cfg.Throttling.LoopDelay > 0 {
		opts = append(opts, mmclient.WithLoopDelay(cfg.Throttling.LoopDelay))
	}
	client := mmclient.New(cfg.Connection.Hostname, opts...)

	var arbiter recovery.Arbiter = recovery.DefaultArbiter{}
	if interactive || cfg.Report.InteractiveRecovery {
		arbiter = recovery.NewInteractiveArbiter()
	}

	s := saver.New(client, cfg, arbiter)
	s.Redownload = redownload

	logger.Info("Connecting", "server", cfg.Connection.Hostname, logger.KeyUser, cfg.Connection.Username)
	if err := s.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Warn("Download interrupted")
		}
		return err
	}
	return nil
}
