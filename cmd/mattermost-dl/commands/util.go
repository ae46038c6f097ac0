package commands

import (
	"fmt"

	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
// --verbose wins over the configured level.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if verbose {
		loggerCfg.Level = "DEBUG"
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
