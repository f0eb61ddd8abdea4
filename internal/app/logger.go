package app

import (
	"strings"

	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/logger"
)

// ConfigureLogging initialises the global logger, defaulting to info on stdout.
func ConfigureLogging(cfg LoggingConfig) error {
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	return logger.InitWithOptions(logger.Options{
		Level: level,
		File: logger.FileOptions{
			Path:       strings.TrimSpace(cfg.File.Path),
			MaxSizeMB:  cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAgeDays: cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		},
	})
}
