// Package pipeline runs the batch steps of the audio and video pipelines.
// Every step processes its items sequentially and isolates failures: an item
// that fails is logged and left out of the output, the rest of the batch
// continues.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/detection"
	"github.com/media-pipelines/media-pipelines-go/internal/metrics"
	"github.com/media-pipelines/media-pipelines-go/internal/storage"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// Detector starts and collects label detection jobs.
type Detector interface {
	Submit(ctx context.Context, loc detection.Location, channel *detection.NotificationChannel) (detection.Job, error)
	Finalize(ctx context.Context, jobID string, loc detection.Location) (detection.Analysis, error)
}

// VideoResult is one finalized video.
type VideoResult struct {
	JobID        string            `json:"job_id"`
	VideoKey     string            `json:"video_s3_key"`
	ProcessedKey string            `json:"processed_key"`
	Summary      detection.Summary `json:"summary"`
}

// VideoOrchestrator drives detection jobs for ingested videos.
type VideoOrchestrator struct {
	detector Detector
	store    storage.BlobStore
	bucket   string
}

// NewVideoOrchestrator creates an orchestrator for videos stored in bucket.
func NewVideoOrchestrator(detector Detector, store storage.BlobStore, bucket string) *VideoOrchestrator {
	return &VideoOrchestrator{
		detector: detector,
		store:    store,
		bucket:   bucket,
	}
}

// StartJobs submits one job per key, in input order. Empty keys and failed
// submissions are skipped.
func (o *VideoOrchestrator) StartJobs(ctx context.Context, keys []string) []detection.Job {
	jobs := make([]detection.Job, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			metrics.BatchItemsTotal.WithLabelValues("video_start", metrics.StatusSkipped).Inc()
			logger.Log.Warn("Skipping video without s3_key")
			continue
		}

		job, err := o.detector.Submit(ctx, detection.Location{Bucket: o.bucket, Key: key}, nil)
		if err != nil {
			metrics.BatchItemsTotal.WithLabelValues("video_start", metrics.StatusFailed).Inc()
			logger.Log.Error("Failed to start Rekognition job",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}

		metrics.BatchItemsTotal.WithLabelValues("video_start", metrics.StatusSuccess).Inc()
		jobs = append(jobs, job)
	}

	logger.Log.Info("Started Rekognition jobs",
		zap.Int("requested", len(keys)),
		zap.Int("started", len(jobs)),
	)
	return jobs
}

// FinalizeJobs collects the labels of terminal jobs and stores each Analysis
// next to its video under the processed prefix.
func (o *VideoOrchestrator) FinalizeJobs(ctx context.Context, jobs []detection.Job) []VideoResult {
	results := make([]VideoResult, 0, len(jobs))
	for _, job := range jobs {
		if job.ID == "" || job.Key == "" {
			metrics.BatchItemsTotal.WithLabelValues("video_finalize", metrics.StatusSkipped).Inc()
			logger.Log.Warn("Skipping job without job_id or video_s3_key", zap.String("job_id", job.ID))
			continue
		}

		result, err := o.finalizeJob(ctx, job)
		if err != nil {
			metrics.BatchItemsTotal.WithLabelValues("video_finalize", metrics.StatusFailed).Inc()
			logger.Log.Error("Failed to finalize job",
				zap.String("job_id", job.ID),
				zap.String("key", job.Key),
				zap.Error(err),
			)
			continue
		}

		metrics.BatchItemsTotal.WithLabelValues("video_finalize", metrics.StatusSuccess).Inc()
		results = append(results, result)
	}

	logger.Log.Info("Finalized Rekognition jobs",
		zap.Int("requested", len(jobs)),
		zap.Int("finalized", len(results)),
	)
	return results
}

func (o *VideoOrchestrator) finalizeJob(ctx context.Context, job detection.Job) (VideoResult, error) {
	loc := job.Location
	if loc.Bucket == "" {
		loc.Bucket = o.bucket
	}

	analysis, err := o.detector.Finalize(ctx, job.ID, loc)
	if err != nil {
		return VideoResult{}, err
	}

	processedKey := storage.ProcessedVideoKey(loc.Key)
	if err := saveJSON(ctx, o.store, loc.Bucket, processedKey, analysis); err != nil {
		return VideoResult{}, err
	}

	return VideoResult{
		JobID:        job.ID,
		VideoKey:     loc.Key,
		ProcessedKey: processedKey,
		Summary:      analysis.Summary,
	}, nil
}

func saveJSON(ctx context.Context, store storage.BlobStore, bucket, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return store.Upload(ctx, storage.Object{
		Bucket:      bucket,
		Key:         key,
		Data:        data,
		ContentType: "application/json",
	})
}
