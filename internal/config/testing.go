package config

import "time"

// NewForTest returns a fully populated configuration that touches no
// environment. Each call builds a fresh value, so tests can mutate it freely.
func NewForTest(overrides ...func(*Config)) *Config {
	cfg := &Config{
		Environment: "test",
		AWS: AWSConfig{
			Region:        "us-east-1",
			VideoBucket:   "test-video-bucket",
			AudioBucket:   "test-audio-bucket",
			MetadataTable: "test-metadata-table",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseBackoff: time.Millisecond,
			Jitter:      0,
		},
		Index: IndexConfig{
			Backend:   IndexBackendDynamoDB,
			ScanLimit: 100,
			TTL:       365 * 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Name:     "media_pipelines_test",
			User:     "test",
			Password: "test",
			SSLMode:  "disable",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
			Exchange: "test.exchange",
			Queue:    "test.queue",
		},
		Ingest: IngestConfig{
			UserAgent:       "MediaPipelines/test",
			HTTPTimeout:     5 * time.Second,
			DownloadTimeout: 5 * time.Second,
			MaxDownloadSize: 10 * 1024 * 1024,
			MaxBatchSize:    50,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: time.Second,
		},
		Logging: LoggingConfig{Level: "debug"},
	}

	for _, override := range overrides {
		override(cfg)
	}

	return cfg
}
