// Package server builds the HTTP API around an app.App.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/app"
	"github.com/media-pipelines/media-pipelines-go/internal/handler"
	"github.com/media-pipelines/media-pipelines-go/internal/middleware"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// NewRouter registers every route. The /v1 group requires an API key when
// any are configured.
func NewRouter(a *app.App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	health := handler.NewHealthHandler(a.Checks...)
	r.GET("/health/live", health.LivenessProbe)
	r.GET("/health/ready", health.ReadinessProbe)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	if keys := a.Config.Server.APIKeys; len(keys) > 0 {
		v1.Use(middleware.NewAPIKeyAuth(keys).Handler())
	} else {
		logger.Log.Warn("No API keys configured, /v1 endpoints are unauthenticated")
	}

	v1.POST("/handlers/:name", handler.NewPipelineHandler(a.Pipeline).Invoke)
	v1.GET("/records", handler.NewRecordsHandler(a.Index).List)

	catalog := handler.NewCatalogHandler(a.Catalog)
	v1.GET("/campaigns", catalog.Campaigns)
	v1.GET("/campaigns/:campaign/counts", catalog.Counts)
	v1.GET("/campaigns/:campaign/latest", catalog.Latest)

	return r
}

// Run serves until ctx is cancelled, then shuts down within the configured
// timeout.
func Run(ctx context.Context, a *app.App) error {
	cfg := a.Config.Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting", zap.Int("port", cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Graceful shutdown failed", zap.Error(err))
		return errors.Join(err, srv.Close())
	}

	logger.Log.Info("Server stopped gracefully")
	return nil
}
