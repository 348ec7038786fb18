// Command trigger starts the audio and/or video pipeline workflows.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/media-pipelines/media-pipelines-go/internal/awsclient"
	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/internal/workflow"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

func main() {
	if err := newRootCmd(newTrigger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Starter starts pipeline executions.
type Starter interface {
	TriggerAudio(ctx context.Context, campaign string, batchSize int) (workflow.Execution, error)
	TriggerVideo(ctx context.Context, campaign string, batchSize int) (workflow.Execution, error)
}

func newTrigger(ctx context.Context) (Starter, error) {
	cfg, err := config.LoadWorkflow()
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.JSON); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	clients, err := awsclient.New(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	return workflow.NewTrigger(clients.SFN, retry.NewInvoker(retry.FromConfig(cfg.Retry)), cfg.AWS), nil
}

func newRootCmd(build func(context.Context) (Starter, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <audio|video|both> [campaign] [batch_size]",
		Short: "Start media pipeline executions",
		Long: `trigger starts Step Functions executions of the media pipelines and
prints the started executions as JSON.

The campaign defaults to "nature". The batch size defaults to 5 for audio
and 2 for video; a batch size given with "both" applies to both pipelines.`,
		Args:          cobra.RangeArgs(1, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts, err := parseArgs(args)
			if err != nil {
				return err
			}

			starter, err := build(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return run(ctx, cmd.OutOrStdout(), starter, opts)
		},
	}
}

type options struct {
	pipeline  string
	campaign  string
	batchSize int // 0 selects the per-pipeline default
}

func parseArgs(args []string) (options, error) {
	opts := options{
		pipeline: strings.ToLower(args[0]),
		campaign: workflow.DefaultCampaign,
	}
	switch opts.pipeline {
	case workflow.PipelineAudio, workflow.PipelineVideo, workflow.PipelineBoth:
	default:
		return options{}, fmt.Errorf("unknown pipeline type: %s", args[0])
	}

	if len(args) > 1 {
		opts.campaign = args[1]
	}
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			return options{}, fmt.Errorf("invalid batch size %q", args[2])
		}
		opts.batchSize = n
	}
	return opts, nil
}

func (o options) size(fallback int) int {
	if o.batchSize > 0 {
		return o.batchSize
	}
	return fallback
}

func run(ctx context.Context, w io.Writer, s Starter, opts options) error {
	var result any
	switch opts.pipeline {
	case workflow.PipelineAudio:
		exec, err := s.TriggerAudio(ctx, opts.campaign, opts.size(workflow.DefaultAudioBatchSize))
		if err != nil {
			return fmt.Errorf("trigger audio pipeline: %w", err)
		}
		result = exec
	case workflow.PipelineVideo:
		exec, err := s.TriggerVideo(ctx, opts.campaign, opts.size(workflow.DefaultVideoBatchSize))
		if err != nil {
			return fmt.Errorf("trigger video pipeline: %w", err)
		}
		result = exec
	case workflow.PipelineBoth:
		audioExec, err := s.TriggerAudio(ctx, opts.campaign, opts.size(workflow.DefaultAudioBatchSize))
		if err != nil {
			return fmt.Errorf("trigger audio pipeline: %w", err)
		}
		videoExec, err := s.TriggerVideo(ctx, opts.campaign, opts.size(workflow.DefaultVideoBatchSize))
		if err != nil {
			return fmt.Errorf("trigger video pipeline: %w", err)
		}
		result = map[string]workflow.Execution{
			workflow.PipelineAudio: audioExec,
			workflow.PipelineVideo: videoExec,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
