package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rtypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/metrics"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

const defaultFailureMessage = "Unknown error"

// RekognitionAPI is the subset of the Rekognition client the service needs.
type RekognitionAPI interface {
	StartLabelDetection(ctx context.Context, params *rekognition.StartLabelDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.StartLabelDetectionOutput, error)
	GetLabelDetection(ctx context.Context, params *rekognition.GetLabelDetectionInput, optFns ...func(*rekognition.Options)) (*rekognition.GetLabelDetectionOutput, error)
}

// Service is a stateless translator over Rekognition Video. Every remote
// call goes through the retry invoker; results are never persisted here.
type Service struct {
	client  RekognitionAPI
	invoker *retry.Invoker
	channel *NotificationChannel
}

// Option customises a Service.
type Option func(*Service)

// WithNotificationChannel sets the default channel used when Submit is
// called without one.
func WithNotificationChannel(ch *NotificationChannel) Option {
	return func(s *Service) {
		s.channel = ch
	}
}

// NewService creates a detection service.
func NewService(client RekognitionAPI, invoker *retry.Invoker, opts ...Option) *Service {
	s := &Service{
		client:  client,
		invoker: invoker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit starts a label detection job for the video at loc. A nil channel
// falls back to the service default.
func (s *Service) Submit(ctx context.Context, loc Location, channel *NotificationChannel) (Job, error) {
	input := &rekognition.StartLabelDetectionInput{
		Video: &rtypes.Video{
			S3Object: &rtypes.S3Object{
				Bucket: aws.String(loc.Bucket),
				Name:   aws.String(loc.Key),
			},
		},
	}

	if channel == nil {
		channel = s.channel
	}
	if channel != nil && channel.TopicARN != "" && channel.RoleARN != "" {
		input.NotificationChannel = &rtypes.NotificationChannel{
			SNSTopicArn: aws.String(channel.TopicARN),
			RoleArn:     aws.String(channel.RoleARN),
		}
	}

	logger.Log.Info("Starting Rekognition label detection job",
		zap.String("bucket", loc.Bucket),
		zap.String("key", loc.Key),
	)

	out, err := retry.Do(ctx, s.invoker, "rekognition.StartLabelDetection", func(ctx context.Context) (*rekognition.StartLabelDetectionOutput, error) {
		return s.client.StartLabelDetection(ctx, input)
	})
	if err != nil {
		return Job{}, fmt.Errorf("start label detection for s3://%s/%s: %w", loc.Bucket, loc.Key, err)
	}

	jobID := aws.ToString(out.JobId)
	if jobID == "" {
		return Job{}, errors.New("start label detection: empty job id in response")
	}

	metrics.DetectionJobsTotal.WithLabelValues("submitted").Inc()
	logger.Log.Info("Rekognition job started", zap.String("job_id", jobID))

	return Job{
		ID:       jobID,
		Status:   StatusInProgress,
		Location: loc,
	}, nil
}

// Poll reports the job's current state. A missing status is UNKNOWN.
func (s *Service) Poll(ctx context.Context, jobID string) (StatusReport, error) {
	out, err := s.getResults(ctx, jobID)
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{
		JobStatus:     statusOf(out.JobStatus),
		StatusMessage: aws.ToString(out.StatusMessage),
		VideoMetadata: json.RawMessage(`{}`),
		Labels:        out.Labels,
	}
	if report.Labels == nil {
		report.Labels = []rtypes.LabelDetection{}
	}
	if out.VideoMetadata != nil {
		meta, err := json.Marshal(out.VideoMetadata)
		if err != nil {
			return StatusReport{}, fmt.Errorf("encode video metadata: %w", err)
		}
		report.VideoMetadata = meta
	}

	logger.Log.Info("Rekognition job status",
		zap.String("job_id", jobID),
		zap.String("status", string(report.JobStatus)),
	)
	return report, nil
}

// Finalize retrieves a terminal job's results with a single call and
// normalizes them. Any status other than SUCCEEDED yields a
// *JobNotSucceededError.
func (s *Service) Finalize(ctx context.Context, jobID string, loc Location) (Analysis, error) {
	logger.Log.Info("Retrieving Rekognition results", zap.String("job_id", jobID))

	out, err := s.getResults(ctx, jobID)
	if err != nil {
		return Analysis{}, err
	}

	status := statusOf(out.JobStatus)
	if status != StatusSucceeded {
		message := defaultFailureMessage
		if out.StatusMessage != nil {
			message = *out.StatusMessage
		}
		metrics.DetectionJobsTotal.WithLabelValues("not_succeeded").Inc()
		return Analysis{}, &JobNotSucceededError{JobID: jobID, Status: status, Message: message}
	}

	duration := durationSeconds(out.VideoMetadata)
	labels := NormalizeLabels(out.Labels)
	// Label detection responses carry no moderation labels; the field is
	// kept so content moderation results can be merged later.
	moderation := []json.RawMessage{}

	metrics.DetectionJobsTotal.WithLabelValues("finalized").Inc()

	return Analysis{
		Location:        loc,
		Duration:        duration,
		Labels:          labels,
		ModerationFlags: moderation,
		Summary:         Summarize(labels, duration, moderation),
	}, nil
}

func (s *Service) getResults(ctx context.Context, jobID string) (*rekognition.GetLabelDetectionOutput, error) {
	out, err := retry.Do(ctx, s.invoker, "rekognition.GetLabelDetection", func(ctx context.Context) (*rekognition.GetLabelDetectionOutput, error) {
		return s.client.GetLabelDetection(ctx, &rekognition.GetLabelDetectionInput{
			JobId: aws.String(jobID),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get label detection %s: %w", jobID, err)
	}
	return out, nil
}

func statusOf(s rtypes.VideoJobStatus) JobStatus {
	if s == "" {
		return StatusUnknown
	}
	return JobStatus(s)
}
