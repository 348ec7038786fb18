// Package handler exposes the pipeline steps as named handlers and serves
// them, together with the catalog, over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/detection"
	"github.com/media-pipelines/media-pipelines-go/internal/ingest"
	"github.com/media-pipelines/media-pipelines-go/internal/metrics"
	"github.com/media-pipelines/media-pipelines-go/internal/models"
	"github.com/media-pipelines/media-pipelines-go/internal/notify"
	"github.com/media-pipelines/media-pipelines-go/internal/pipeline"
	"github.com/media-pipelines/media-pipelines-go/internal/storage"
	"github.com/media-pipelines/media-pipelines-go/internal/validation"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// Handler names.
const (
	NameVideoIngest   = "video-ingest"
	NameVideoStart    = "video-rekognition-start"
	NameVideoCheck    = "video-rekognition-check"
	NameVideoFinalize = "video-rekognition-finalize"
	NameVideoIndex    = "video-index"
	NameAudioIngest   = "audio-ingest"
	NameAudioAnalyze  = "audio-analyze"
	NameAudioIndex    = "audio-index"
)

// Ingester fetches new media.
type Ingester interface {
	IngestVideos(ctx context.Context, campaign string, batchSize int) ([]ingest.VideoMetadata, error)
	IngestAudio(ctx context.Context, campaign string, batchSize int) ([]ingest.AudioMetadata, error)
}

// VideoOrchestrator runs the detection steps.
type VideoOrchestrator interface {
	StartJobs(ctx context.Context, keys []string) []detection.Job
	FinalizeJobs(ctx context.Context, jobs []detection.Job) []pipeline.VideoResult
}

// StatusPoller reports the state of a detection job.
type StatusPoller interface {
	Poll(ctx context.Context, jobID string) (detection.StatusReport, error)
}

// AudioOrchestrator runs the audio analysis step.
type AudioOrchestrator interface {
	AnalyzeBatch(ctx context.Context, items []ingest.AudioMetadata) []pipeline.AudioResult
}

// Indexer records processed items.
type Indexer interface {
	IndexResults(ctx context.Context, mediaType, campaign string, items []pipeline.IndexItem) int
}

var errJobIDRequired = errors.New("job_id is required")

// Deps are the collaborators of the pipeline handlers.
type Deps struct {
	Ingester  Ingester
	Video     VideoOrchestrator
	Poller    StatusPoller
	Audio     AudioOrchestrator
	Indexer   Indexer
	Notifier  notify.Notifier
	Validator *validation.Validator
}

// Pipeline holds the eight pipeline handlers. Every handler returns its
// response type; failures are reported in the response's error field.
type Pipeline struct {
	deps Deps
}

// NewPipeline creates the handlers. A nil Notifier or Validator is replaced
// by a no-op notifier and an unbounded validator.
func NewPipeline(deps Deps) *Pipeline {
	if deps.Notifier == nil {
		deps.Notifier = notify.NopNotifier{}
	}
	if deps.Validator == nil {
		deps.Validator = validation.New(0)
	}
	return &Pipeline{deps: deps}
}

// VideoIngest searches Wikimedia Commons and stores a batch of videos.
func (p *Pipeline) VideoIngest(ctx context.Context, req models.IngestRequest) models.VideoIngestResponse {
	return run(ctx, NameVideoIngest, func(ctx context.Context) (models.VideoIngestResponse, error) {
		campaign := models.CampaignOr(req.Campaign, models.DefaultCampaign)
		batchSize := models.IntOr(req.BatchSizeVideo, models.DefaultVideoBatchSize)
		if err := p.validateIngest(campaign, "batch_size_video", batchSize); err != nil {
			return models.VideoIngestResponse{}, err
		}

		logger.Log.Info("Starting video ingestion",
			zap.String("campaign", campaign),
			zap.Int("batch_size", batchSize),
		)
		items, err := p.deps.Ingester.IngestVideos(ctx, campaign, batchSize)
		if err != nil {
			return models.VideoIngestResponse{}, err
		}

		return models.VideoIngestResponse{
			Campaign:      campaign,
			BatchSize:     batchSize,
			IngestedCount: len(items),
			Metadata:      items,
		}, nil
	}, func(err error) models.VideoIngestResponse {
		return videoIngestError(models.CampaignOr(req.Campaign, models.UnknownCampaign), err)
	})
}

// VideoStart submits one detection job per ingested video.
func (p *Pipeline) VideoStart(ctx context.Context, req models.StartRequest) models.StartResponse {
	campaign := models.CampaignOr(req.Campaign, models.UnknownCampaign)
	return run(ctx, NameVideoStart, func(ctx context.Context) (models.StartResponse, error) {
		if len(req.Metadata) == 0 {
			logger.Log.Warn("No metadata provided for Rekognition")
			return models.StartResponse{Jobs: []detection.Job{}, Campaign: campaign}, nil
		}

		keys := make([]string, len(req.Metadata))
		for i, item := range req.Metadata {
			keys[i] = item.S3Key
		}
		return models.StartResponse{
			Jobs:     p.deps.Video.StartJobs(ctx, keys),
			Campaign: campaign,
		}, nil
	}, func(err error) models.StartResponse {
		return startError(campaign, err)
	})
}

// VideoCheck polls one job. Any failure is reported as a FAILED status.
func (p *Pipeline) VideoCheck(ctx context.Context, req models.CheckRequest) detection.StatusReport {
	return run(ctx, NameVideoCheck, func(ctx context.Context) (detection.StatusReport, error) {
		if req.JobID == "" {
			return detection.StatusReport{}, errJobIDRequired
		}

		report, err := p.deps.Poller.Poll(ctx, req.JobID)
		if err != nil {
			return detection.StatusReport{}, err
		}
		if report.JobStatus.Terminal() {
			logger.Log.Info("Job reached terminal status",
				zap.String("job_id", req.JobID),
				zap.String("status", string(report.JobStatus)),
			)
		} else {
			logger.Log.Debug("Job still running", zap.String("job_id", req.JobID))
		}
		return report, nil
	}, detection.FailedReport)
}

// VideoFinalize collects labels of terminal jobs and stores the analyses.
func (p *Pipeline) VideoFinalize(ctx context.Context, req models.FinalizeRequest) models.FinalizeResponse {
	campaign := models.CampaignOr(req.Campaign, models.UnknownCampaign)
	return run(ctx, NameVideoFinalize, func(ctx context.Context) (models.FinalizeResponse, error) {
		results := []pipeline.VideoResult{}
		if len(req.Jobs) == 0 {
			logger.Log.Warn("No jobs provided for finalization")
		} else {
			results = p.deps.Video.FinalizeJobs(ctx, req.Jobs)
		}
		return models.FinalizeResponse{
			Campaign:       campaign,
			ProcessedCount: len(results),
			Results:        results,
		}, nil
	}, func(err error) models.FinalizeResponse {
		return finalizeError(campaign, err)
	})
}

// VideoIndex records finalized videos and announces the pipeline outcome.
func (p *Pipeline) VideoIndex(ctx context.Context, req models.VideoIndexRequest) models.IndexResponse {
	campaign := models.CampaignOr(req.Campaign, models.UnknownCampaign)
	resp := run(ctx, NameVideoIndex, func(ctx context.Context) (models.IndexResponse, error) {
		items := make([]pipeline.IndexItem, 0, len(req.Finalization.Results))
		for _, r := range req.Finalization.Results {
			items = append(items, pipeline.IndexItem{S3Key: r.VideoKey, ProcessedKey: r.ProcessedKey, Metadata: r.Summary})
		}
		return p.index(ctx, storage.MediaTypeVideo, campaign, items), nil
	}, func(err error) models.IndexResponse {
		return indexError(campaign, err)
	})

	p.notify(ctx, storage.MediaTypeVideo, req.ExecutionARN, resp)
	return resp
}

// AudioIngest searches the configured audio source and stores a batch.
func (p *Pipeline) AudioIngest(ctx context.Context, req models.IngestRequest) models.AudioIngestResponse {
	return run(ctx, NameAudioIngest, func(ctx context.Context) (models.AudioIngestResponse, error) {
		campaign := models.CampaignOr(req.Campaign, models.DefaultCampaign)
		batchSize := models.IntOr(req.BatchSizeAudio, models.DefaultAudioBatchSize)
		if err := p.validateIngest(campaign, "batch_size_audio", batchSize); err != nil {
			return models.AudioIngestResponse{}, err
		}

		logger.Log.Info("Starting audio ingestion",
			zap.String("campaign", campaign),
			zap.Int("batch_size", batchSize),
		)
		items, err := p.deps.Ingester.IngestAudio(ctx, campaign, batchSize)
		if err != nil {
			return models.AudioIngestResponse{}, err
		}

		return models.AudioIngestResponse{
			Campaign:      campaign,
			BatchSize:     batchSize,
			IngestedCount: len(items),
			Metadata:      items,
		}, nil
	}, func(err error) models.AudioIngestResponse {
		return audioIngestError(models.CampaignOr(req.Campaign, models.UnknownCampaign), err)
	})
}

// AudioAnalyze analyses a batch of ingested audio.
func (p *Pipeline) AudioAnalyze(ctx context.Context, req models.AnalyzeRequest) models.AnalyzeResponse {
	return run(ctx, NameAudioAnalyze, func(ctx context.Context) (models.AnalyzeResponse, error) {
		campaign := models.CampaignOr(req.Campaign, models.DefaultCampaign)
		results := []pipeline.AudioResult{}
		if len(req.Metadata) == 0 {
			logger.Log.Warn("No metadata provided for analysis")
		} else {
			results = p.deps.Audio.AnalyzeBatch(ctx, req.Metadata)
		}
		return models.AnalyzeResponse{
			Campaign:       campaign,
			ProcessedCount: len(results),
			Results:        results,
		}, nil
	}, func(err error) models.AnalyzeResponse {
		return analyzeError(models.CampaignOr(req.Campaign, models.UnknownCampaign), err)
	})
}

// AudioIndex records analysed audio and announces the pipeline outcome.
func (p *Pipeline) AudioIndex(ctx context.Context, req models.AudioIndexRequest) models.IndexResponse {
	campaign := models.CampaignOr(req.Campaign, models.UnknownCampaign)
	resp := run(ctx, NameAudioIndex, func(ctx context.Context) (models.IndexResponse, error) {
		items := make([]pipeline.IndexItem, 0, len(req.Analysis.Results))
		for _, r := range req.Analysis.Results {
			items = append(items, pipeline.IndexItem{S3Key: r.S3Key, ProcessedKey: r.ProcessedKey, Metadata: r.Analysis})
		}
		return p.index(ctx, storage.MediaTypeAudio, campaign, items), nil
	}, func(err error) models.IndexResponse {
		return indexError(campaign, err)
	})

	p.notify(ctx, storage.MediaTypeAudio, req.ExecutionARN, resp)
	return resp
}

func (p *Pipeline) index(ctx context.Context, mediaType, campaign string, items []pipeline.IndexItem) models.IndexResponse {
	if len(items) == 0 {
		logger.Log.Warn("No results to index", zap.String("media_type", mediaType))
		return models.IndexResponse{Campaign: campaign}
	}
	return models.IndexResponse{
		IndexedCount: p.deps.Indexer.IndexResults(ctx, mediaType, campaign, items),
		Campaign:     campaign,
	}
}

// Error responses, one per response type. Collections are empty rather than
// null so the workflow engine can always iterate them.

func videoIngestError(campaign string, err error) models.VideoIngestResponse {
	return models.VideoIngestResponse{Error: err.Error(), Campaign: campaign, Metadata: []ingest.VideoMetadata{}}
}

func audioIngestError(campaign string, err error) models.AudioIngestResponse {
	return models.AudioIngestResponse{Error: err.Error(), Campaign: campaign, Metadata: []ingest.AudioMetadata{}}
}

func startError(campaign string, err error) models.StartResponse {
	return models.StartResponse{Error: err.Error(), Jobs: []detection.Job{}, Campaign: campaign}
}

func checkError(_ string, err error) detection.StatusReport {
	return detection.FailedReport(err)
}

func finalizeError(campaign string, err error) models.FinalizeResponse {
	return models.FinalizeResponse{Error: err.Error(), Campaign: campaign, Results: []pipeline.VideoResult{}}
}

func analyzeError(campaign string, err error) models.AnalyzeResponse {
	return models.AnalyzeResponse{Error: err.Error(), Campaign: campaign, Results: []pipeline.AudioResult{}}
}

func indexError(campaign string, err error) models.IndexResponse {
	return models.IndexResponse{Error: err.Error(), Campaign: campaign}
}

func (p *Pipeline) validateIngest(campaign, batchField string, batchSize int) error {
	if err := p.deps.Validator.ValidateCampaign(campaign); err != nil {
		return err
	}
	return p.deps.Validator.ValidateBatchSize(batchField, batchSize)
}

// notify announces the end of a pipeline. A failed notification is logged
// and does not change the handler's response.
func (p *Pipeline) notify(ctx context.Context, pipelineType, executionARN string, resp models.IndexResponse) {
	n := notify.Notification{
		PipelineType: pipelineType,
		Campaign:     resp.Campaign,
		Status:       notify.StatusSucceeded,
		Error:        resp.Error,
	}
	if resp.Error != "" {
		n.Status = notify.StatusFailed
	} else {
		count := resp.IndexedCount
		n.Count = &count
	}
	if executionARN != "" {
		n.ExecutionARN = &executionARN
	}

	if err := p.deps.Notifier.Notify(ctx, n); err != nil {
		logger.Log.Error("Failed to send notification",
			zap.String("subject", n.Subject()),
			zap.Error(err),
		)
	}
}

// run executes a handler body. Errors and panics become the handler's error
// response.
func run[Resp any](ctx context.Context, name string, fn func(context.Context) (Resp, error), onError func(error) Resp) (resp Resp) {
	start := time.Now()
	status := metrics.StatusSuccess

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Handler panicked",
				zap.String("handler", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			status = metrics.StatusFailed
			resp = onError(fmt.Errorf("internal error: %v", r))
		}
		metrics.HandlerInvocationsTotal.WithLabelValues(name, status).Inc()
		metrics.HandlerDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	out, err := fn(ctx)
	if err != nil {
		status = metrics.StatusFailed
		var vErr *validation.ValidationError
		var dErr *DecodeError
		if errors.As(err, &vErr) || errors.As(err, &dErr) {
			logger.Log.Warn("Rejected handler input", zap.String("handler", name), zap.Error(err))
		} else {
			logger.Log.Error("Handler failed", zap.String("handler", name), zap.Error(err))
		}
		return onError(err)
	}
	return out
}
