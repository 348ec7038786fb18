package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/app"
	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/server"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.JSON); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Environment != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Log.Error("Failed to close application", zap.Error(err))
		}
	}()

	if err := server.Run(ctx, a); err != nil {
		logger.Log.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
}
