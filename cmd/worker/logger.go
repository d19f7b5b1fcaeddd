package main

import (
	"github.com/communimeter/verify-worker/internal/config"
	"github.com/communimeter/verify-worker/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
