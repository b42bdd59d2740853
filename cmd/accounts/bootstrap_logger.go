package main

import (
	"go.uber.org/zap"

	"github.com/streampulse/accounts/internal/config"
	"github.com/streampulse/accounts/internal/obs"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(*cfg.Log.AsLoggerConfig(cfg.App))
}
