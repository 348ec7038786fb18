// Package workflow starts Step Functions executions of the pipelines.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// Pipeline types.
const (
	PipelineAudio = "audio"
	PipelineVideo = "video"
	PipelineBoth  = "both"
)

// Defaults used by the scheduled trigger.
const (
	DefaultCampaign       = "nature"
	DefaultAudioBatchSize = 5
	DefaultVideoBatchSize = 2

	AudioStateMachineName = "media-pipelines-audio-pipeline"
	VideoStateMachineName = "media-pipelines-video-pipeline"
)

// SFNAPI is the subset of the Step Functions client the trigger needs.
type SFNAPI interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
	sfn.ListStateMachinesAPIClient
}

// Execution is a started workflow run.
type Execution struct {
	ExecutionARN string    `json:"executionArn"`
	StartDate    time.Time `json:"startDate"`
}

// Trigger starts pipeline executions.
type Trigger struct {
	client  SFNAPI
	invoker *retry.Invoker
	audioSM string
	videoSM string
	newName func() string
}

// NewTrigger creates a trigger. State machines not configured by ARN are
// looked up by their default names.
func NewTrigger(client SFNAPI, invoker *retry.Invoker, cfg config.AWSConfig) *Trigger {
	t := &Trigger{
		client:  client,
		invoker: invoker,
		audioSM: cfg.AudioStateMachineARN,
		videoSM: cfg.VideoStateMachineARN,
		newName: uuid.NewString,
	}
	if t.audioSM == "" {
		t.audioSM = AudioStateMachineName
	}
	if t.videoSM == "" {
		t.videoSM = VideoStateMachineName
	}
	return t
}

// TriggerAudio starts the audio pipeline.
func (t *Trigger) TriggerAudio(ctx context.Context, campaign string, batchSize int) (Execution, error) {
	logger.Log.Info("Triggering audio pipeline",
		zap.String("campaign", campaign),
		zap.Int("batch_size", batchSize),
	)
	return t.Start(ctx, t.audioSM, map[string]any{
		"campaign":         campaign,
		"batch_size_audio": batchSize,
	})
}

// TriggerVideo starts the video pipeline.
func (t *Trigger) TriggerVideo(ctx context.Context, campaign string, batchSize int) (Execution, error) {
	logger.Log.Info("Triggering video pipeline",
		zap.String("campaign", campaign),
		zap.Int("batch_size", batchSize),
	)
	return t.Start(ctx, t.videoSM, map[string]any{
		"campaign":         campaign,
		"batch_size_video": batchSize,
	})
}

// Start runs stateMachine, an ARN or a state machine name, with payload
// encoded as compact JSON with sorted keys.
func (t *Trigger) Start(ctx context.Context, stateMachine string, payload map[string]any) (Execution, error) {
	input, err := EncodePayload(payload)
	if err != nil {
		return Execution{}, err
	}

	arn, err := t.resolve(ctx, stateMachine)
	if err != nil {
		return Execution{}, err
	}

	name := t.newName()
	out, err := retry.Do(ctx, t.invoker, "sfn.StartExecution", func(ctx context.Context) (*sfn.StartExecutionOutput, error) {
		return t.client.StartExecution(ctx, &sfn.StartExecutionInput{
			StateMachineArn: aws.String(arn),
			Name:            aws.String(name),
			Input:           aws.String(input),
		})
	})
	if err != nil {
		return Execution{}, fmt.Errorf("start execution of %s: %w", arn, err)
	}

	exec := Execution{ExecutionARN: aws.ToString(out.ExecutionArn)}
	if out.StartDate != nil {
		exec.StartDate = out.StartDate.UTC()
	}

	logger.Log.Info("Started pipeline execution", zap.String("execution_arn", exec.ExecutionARN))
	return exec, nil
}

// resolve maps a state machine name to its ARN.
func (t *Trigger) resolve(ctx context.Context, stateMachine string) (string, error) {
	if strings.HasPrefix(stateMachine, "arn:") {
		return stateMachine, nil
	}

	paginator := sfn.NewListStateMachinesPaginator(t.client, &sfn.ListStateMachinesInput{})
	for paginator.HasMorePages() {
		page, err := retry.Do(ctx, t.invoker, "sfn.ListStateMachines", func(ctx context.Context) (*sfn.ListStateMachinesOutput, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return "", fmt.Errorf("list state machines: %w", err)
		}
		for _, sm := range page.StateMachines {
			if aws.ToString(sm.Name) == stateMachine {
				return aws.ToString(sm.StateMachineArn), nil
			}
		}
	}
	return "", fmt.Errorf("state machine %q not found", stateMachine)
}

// EncodePayload renders payload as compact JSON. Map keys are sorted.
func EncodePayload(payload map[string]any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode execution input: %w", err)
	}
	return string(data), nil
}
