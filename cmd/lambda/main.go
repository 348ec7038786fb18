// Command lambda serves one pipeline step as an AWS Lambda function. The
// step is chosen by the HANDLER environment variable.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/app"
	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// CloudWatch expects one JSON object per line.
	if err := logger.Init(cfg.Logging.Level, "", true); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize application", zap.Error(err))
	}

	name := cfg.Lambda.Handler
	if name == "" {
		logger.Log.Fatal("No handler configured", zap.Error(&config.MissingConfigError{Key: "lambda.handler"}))
	}
	if !slices.Contains(a.Pipeline.Names(), name) {
		logger.Log.Fatal("Unknown handler", zap.String("handler", name), zap.Strings("available", a.Pipeline.Names()))
	}

	logger.Log.Info("Lambda handler ready", zap.String("handler", name))
	lambda.Start(func(ctx context.Context, payload json.RawMessage) (any, error) {
		defer func() { _ = logger.Sync() }()
		return a.Pipeline.Invoke(ctx, name, payload)
	})
}
