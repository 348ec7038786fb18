// Package models contains the request and response types of the pipeline
// handlers. Unknown JSON fields are ignored on input.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/media-pipelines/media-pipelines-go/internal/detection"
	"github.com/media-pipelines/media-pipelines-go/internal/ingest"
	"github.com/media-pipelines/media-pipelines-go/internal/pipeline"
)

// Campaign defaults used when a request omits the campaign.
const (
	DefaultCampaign = "default"
	UnknownCampaign = "unknown"
)

// Default batch sizes.
const (
	DefaultAudioBatchSize = 5
	DefaultVideoBatchSize = 2
)

// FlexInt accepts a JSON number or a numeric string. Request fields hold a
// *FlexInt so that an absent value can be told apart from zero.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)

	n, err := strconv.Atoi(s)
	if err != nil {
		var fl float64
		if ferr := json.Unmarshal([]byte(s), &fl); ferr != nil || fl != float64(int(fl)) {
			return fmt.Errorf("invalid integer %s", string(data))
		}
		n = int(fl)
	}
	*f = FlexInt(n)
	return nil
}

// IntOr returns *f, or def when f is nil.
func IntOr(f *FlexInt, def int) int {
	if f == nil {
		return def
	}
	return int(*f)
}

// CampaignOr returns campaign, or def when it is empty.
func CampaignOr(campaign, def string) string {
	if campaign == "" {
		return def
	}
	return campaign
}

// IngestRequest starts either pipeline.
type IngestRequest struct {
	Campaign       string   `json:"campaign"`
	BatchSizeVideo *FlexInt `json:"batch_size_video"`
	BatchSizeAudio *FlexInt `json:"batch_size_audio"`
}

// VideoIngestResponse is the output of video-ingest.
type VideoIngestResponse struct {
	Error         string                 `json:"error,omitempty"`
	Campaign      string                 `json:"campaign"`
	BatchSize     int                    `json:"batch_size,omitempty"`
	IngestedCount int                    `json:"ingested_count"`
	Metadata      []ingest.VideoMetadata `json:"metadata"`
}

// AudioIngestResponse is the output of audio-ingest.
type AudioIngestResponse struct {
	Error         string                 `json:"error,omitempty"`
	Campaign      string                 `json:"campaign"`
	BatchSize     int                    `json:"batch_size,omitempty"`
	IngestedCount int                    `json:"ingested_count"`
	Metadata      []ingest.AudioMetadata `json:"metadata"`
}

// KeyedItem is any ingested item; only its key is read.
type KeyedItem struct {
	S3Key string `json:"s3_key"`
}

// StartRequest is the input of video-rekognition-start.
type StartRequest struct {
	Campaign string      `json:"campaign"`
	Metadata []KeyedItem `json:"metadata"`
}

// StartResponse lists the jobs that were started.
type StartResponse struct {
	Error    string          `json:"error,omitempty"`
	Jobs     []detection.Job `json:"jobs"`
	Campaign string          `json:"campaign"`
}

// CheckRequest is the input of video-rekognition-check.
type CheckRequest struct {
	JobID string `json:"job_id"`
}

// FinalizeRequest is the input of video-rekognition-finalize.
type FinalizeRequest struct {
	Campaign string          `json:"campaign"`
	Jobs     []detection.Job `json:"jobs"`
}

// FinalizeResponse is the output of video-rekognition-finalize.
type FinalizeResponse struct {
	Error          string                 `json:"error,omitempty"`
	Campaign       string                 `json:"campaign"`
	ProcessedCount int                    `json:"processed_count"`
	Results        []pipeline.VideoResult `json:"results"`
}

// VideoIndexRequest is the input of video-index.
type VideoIndexRequest struct {
	Campaign     string `json:"campaign"`
	ExecutionARN string `json:"execution_arn,omitempty"`
	Finalization struct {
		Results []pipeline.VideoResult `json:"results"`
	} `json:"finalization"`
}

// AnalyzeRequest is the input of audio-analyze.
type AnalyzeRequest struct {
	Campaign string                 `json:"campaign"`
	Metadata []ingest.AudioMetadata `json:"metadata"`
}

// AnalyzeResponse is the output of audio-analyze.
type AnalyzeResponse struct {
	Error          string                 `json:"error,omitempty"`
	Campaign       string                 `json:"campaign"`
	ProcessedCount int                    `json:"processed_count"`
	Results        []pipeline.AudioResult `json:"results"`
}

// AudioIndexRequest is the input of audio-index.
type AudioIndexRequest struct {
	Campaign     string `json:"campaign"`
	ExecutionARN string `json:"execution_arn,omitempty"`
	Analysis     struct {
		Results []pipeline.AudioResult `json:"results"`
	} `json:"analysis"`
}

// IndexResponse is the output of both index handlers.
type IndexResponse struct {
	Error        string `json:"error,omitempty"`
	IndexedCount int    `json:"indexed_count"`
	Campaign     string `json:"campaign"`
}
