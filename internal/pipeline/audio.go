package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/audio"
	"github.com/media-pipelines/media-pipelines-go/internal/ingest"
	"github.com/media-pipelines/media-pipelines-go/internal/metrics"
	"github.com/media-pipelines/media-pipelines-go/internal/storage"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// Analyzer summarises decoded audio.
type Analyzer interface {
	Analyze(data []byte, requiresAttribution bool) (audio.Analysis, error)
}

// AudioResult is one analysed audio file.
type AudioResult struct {
	S3Key        string         `json:"s3_key"`
	ProcessedKey string         `json:"processed_key"`
	Analysis     audio.Analysis `json:"analysis"`
}

// AudioOrchestrator analyses ingested audio.
type AudioOrchestrator struct {
	analyzer Analyzer
	store    storage.BlobStore
	bucket   string
}

// NewAudioOrchestrator creates an orchestrator for audio stored in bucket.
func NewAudioOrchestrator(analyzer Analyzer, store storage.BlobStore, bucket string) *AudioOrchestrator {
	return &AudioOrchestrator{
		analyzer: analyzer,
		store:    store,
		bucket:   bucket,
	}
}

// AnalyzeBatch downloads, analyses and stores a summary for every item.
func (o *AudioOrchestrator) AnalyzeBatch(ctx context.Context, items []ingest.AudioMetadata) []AudioResult {
	results := make([]AudioResult, 0, len(items))
	for _, item := range items {
		if item.S3Key == "" {
			metrics.BatchItemsTotal.WithLabelValues("audio_analyze", metrics.StatusSkipped).Inc()
			logger.Log.Warn("Skipping audio without s3_key")
			continue
		}

		result, err := o.analyze(ctx, item)
		if err != nil {
			metrics.BatchItemsTotal.WithLabelValues("audio_analyze", metrics.StatusFailed).Inc()
			logger.Log.Error("Failed to analyze audio",
				zap.String("key", item.S3Key),
				zap.Error(err),
			)
			continue
		}

		metrics.BatchItemsTotal.WithLabelValues("audio_analyze", metrics.StatusSuccess).Inc()
		results = append(results, result)
	}

	logger.Log.Info("Analyzed audio files",
		zap.Int("requested", len(items)),
		zap.Int("processed", len(results)),
	)
	return results
}

func (o *AudioOrchestrator) analyze(ctx context.Context, item ingest.AudioMetadata) (AudioResult, error) {
	data, err := o.store.Download(ctx, o.bucket, item.S3Key)
	if err != nil {
		return AudioResult{}, err
	}

	analysis, err := o.analyzer.Analyze(data, ingest.RequiresAttribution(item.License))
	if err != nil {
		return AudioResult{}, err
	}

	processedKey := storage.ProcessedAudioKey(item.S3Key)
	if err := saveJSON(ctx, o.store, o.bucket, processedKey, analysis); err != nil {
		return AudioResult{}, err
	}

	return AudioResult{
		S3Key:        item.S3Key,
		ProcessedKey: processedKey,
		Analysis:     analysis,
	}, nil
}
