// Package app assembles the pipeline components from configuration. Both the
// Lambda and the HTTP binaries are built from an App.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/audio"
	"github.com/media-pipelines/media-pipelines-go/internal/awsclient"
	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/db"
	"github.com/media-pipelines/media-pipelines-go/internal/detection"
	"github.com/media-pipelines/media-pipelines-go/internal/handler"
	"github.com/media-pipelines/media-pipelines-go/internal/index"
	"github.com/media-pipelines/media-pipelines-go/internal/ingest"
	"github.com/media-pipelines/media-pipelines-go/internal/notify"
	"github.com/media-pipelines/media-pipelines-go/internal/pipeline"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/internal/storage"
	"github.com/media-pipelines/media-pipelines-go/internal/validation"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Pipeline *handler.Pipeline
	Index    index.Index
	Catalog  *storage.Catalog
	Checks   []handler.HealthCheck

	notifier notify.Notifier
	pool     *pgxpool.Pool
}

// New loads the AWS clients and builds the App. The caller must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	clients, err := awsclient.New(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	return Build(ctx, cfg, clients)
}

// Build wires the App around already created AWS clients.
func Build(ctx context.Context, cfg *config.Config, clients *awsclient.Clients) (*App, error) {
	invoker := retry.NewInvoker(retry.FromConfig(cfg.Retry))
	store := storage.NewS3Store(clients.S3, invoker)
	buckets := storage.Buckets{Audio: cfg.AWS.AudioBucket, Video: cfg.AWS.VideoBucket}

	a := &App{
		Config:  cfg,
		Catalog: storage.NewCatalog(store, buckets),
	}
	a.Checks = append(a.Checks, handler.HealthCheck{
		Name:  "s3",
		Check: func(ctx context.Context) error { return store.Health(ctx, cfg.AWS.VideoBucket) },
	})

	if err := a.buildIndex(ctx, cfg, clients, invoker); err != nil {
		return nil, err
	}

	notifier, err := notify.New(cfg.RabbitMQ, invoker)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create notifier: %w", err)
	}
	a.notifier = notifier
	if rn, ok := notifier.(*notify.RabbitNotifier); ok {
		a.Checks = append(a.Checks, handler.HealthCheck{Name: "rabbitmq", Check: func(context.Context) error {
			if !rn.IsHealthy() {
				return errors.New("rabbitmq connection closed")
			}
			return nil
		}})
	}

	var detectorOpts []detection.Option
	if cfg.AWS.RekognitionTopicARN != "" && cfg.AWS.RekognitionRoleARN != "" {
		detectorOpts = append(detectorOpts, detection.WithNotificationChannel(&detection.NotificationChannel{
			TopicARN: cfg.AWS.RekognitionTopicARN,
			RoleARN:  cfg.AWS.RekognitionRoleARN,
		}))
	}
	detector := detection.NewService(clients.Rekognition, invoker, detectorOpts...)

	ingester := ingest.NewIngester(store, invoker, buckets,
		ingest.NewWikimediaClient(cfg.Ingest),
		AudioSource(cfg.Ingest, invoker),
	)

	a.Pipeline = handler.NewPipeline(handler.Deps{
		Ingester:  ingester,
		Video:     pipeline.NewVideoOrchestrator(detector, store, cfg.AWS.VideoBucket),
		Poller:    detector,
		Audio:     pipeline.NewAudioOrchestrator(audio.NewAnalyzer(), store, cfg.AWS.AudioBucket),
		Indexer:   pipeline.NewIndexer(a.Index, cfg.Index.TTL),
		Notifier:  notifier,
		Validator: validation.New(cfg.Ingest.MaxBatchSize),
	})

	logger.Log.Info("Pipeline components ready",
		zap.String("environment", cfg.Environment),
		zap.String("index_backend", cfg.Index.Backend),
		zap.Bool("notifications", cfg.RabbitMQ.Enabled),
	)
	return a, nil
}

func (a *App) buildIndex(ctx context.Context, cfg *config.Config, clients *awsclient.Clients, invoker *retry.Invoker) error {
	switch cfg.Index.Backend {
	case config.IndexBackendPostgres:
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		a.pool = pool
		a.Index = index.NewPostgresIndex(pool, cfg.Index.ScanLimit, invoker)
		a.Checks = append(a.Checks, handler.HealthCheck{Name: "database", Check: pool.Ping})
	default:
		idx := index.NewDynamoIndex(clients.DynamoDB, cfg.AWS.MetadataTable, cfg.Index.ScanLimit, invoker)
		a.Index = idx
		a.Checks = append(a.Checks, handler.HealthCheck{Name: "dynamodb", Check: idx.Health})
	}
	return nil
}

// AudioSource picks Freesound when an API key is configured and the
// Internet Archive otherwise.
func AudioSource(cfg config.IngestConfig, invoker *retry.Invoker) ingest.AudioSource {
	if cfg.FreesoundAPIKey != "" {
		return ingest.NewFreesoundClient(cfg)
	}
	return ingest.NewArchiveClient(cfg, invoker)
}

// Close releases the broker connection and the database pool.
func (a *App) Close() error {
	var errs []error
	if a.notifier != nil {
		errs = append(errs, a.notifier.Close())
	}
	db.Close(a.pool)
	return errors.Join(errs...)
}
