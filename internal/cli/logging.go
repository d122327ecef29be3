package cli

import (
	"fmt"

	"github.com/scmhooks/jenkins-notifier/internal/config"
	"github.com/scmhooks/jenkins-notifier/internal/logger"
)

// ConfigureGlobalLogger initializes the process-wide logger from configuration.
func ConfigureGlobalLogger(cfg *config.Config) error {
	l, err := logger.New(logger.Options{
		Level:    cfg.Logging.Level,
		Encoding: cfg.Logging.Encoding,
		File:     cfg.Logging.File,
		Verbose:  cfg.LogVerbose(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(l)
	return nil
}
