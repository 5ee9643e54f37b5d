package cmd

import (
	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/logger"
)

// loadConfig reads the environment the way the server does.
func loadConfig() (*config.Config, func()) {
	cfg := config.Load()
	flush := logger.Init(cfg.AppName, cfg.AppEnv, cfg.IsDevelopment(), cfg.SentryDSN)
	return cfg, flush
}
