package detection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rtypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/media-pipelines/media-pipelines-go/internal/retry"
)

type mockRekognition struct {
	mock.Mock
}

func (m *mockRekognition) StartLabelDetection(ctx context.Context, in *rekognition.StartLabelDetectionInput, _ ...func(*rekognition.Options)) (*rekognition.StartLabelDetectionOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*rekognition.StartLabelDetectionOutput)
	return out, args.Error(1)
}

func (m *mockRekognition) GetLabelDetection(ctx context.Context, in *rekognition.GetLabelDetectionInput, _ ...func(*rekognition.Options)) (*rekognition.GetLabelDetectionOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*rekognition.GetLabelDetectionOutput)
	return out, args.Error(1)
}

func testInvoker() *retry.Invoker {
	return retry.NewInvoker(retry.DefaultPolicy(), retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
}

var loc = Location{Bucket: "bucket", Key: "media-raw/video/nature/20240115_103000/clip.mp4"}

func rawLabel(name string, confidence float32, ts int64) rtypes.LabelDetection {
	return rtypes.LabelDetection{
		Label:     &rtypes.Label{Name: aws.String(name), Confidence: aws.Float32(confidence)},
		Timestamp: ts,
	}
}

func TestSubmit(t *testing.T) {
	client := &mockRekognition{}
	client.On("StartLabelDetection", mock.Anything, mock.MatchedBy(func(in *rekognition.StartLabelDetectionInput) bool {
		return aws.ToString(in.Video.S3Object.Bucket) == "bucket" &&
			aws.ToString(in.Video.S3Object.Name) == loc.Key &&
			in.NotificationChannel == nil
	})).Return(&rekognition.StartLabelDetectionOutput{JobId: aws.String("job-1")}, nil).Once()

	svc := NewService(client, testInvoker())
	job, err := svc.Submit(context.Background(), loc, nil)

	require.NoError(t, err)
	assert.Equal(t, Job{ID: "job-1", Status: StatusInProgress, Location: loc}, job)
	client.AssertExpectations(t)
}

func TestSubmitNotificationChannel(t *testing.T) {
	client := &mockRekognition{}
	client.On("StartLabelDetection", mock.Anything, mock.MatchedBy(func(in *rekognition.StartLabelDetectionInput) bool {
		return in.NotificationChannel != nil &&
			aws.ToString(in.NotificationChannel.SNSTopicArn) == "arn:topic" &&
			aws.ToString(in.NotificationChannel.RoleArn) == "arn:role"
	})).Return(&rekognition.StartLabelDetectionOutput{JobId: aws.String("job-2")}, nil).Twice()

	svc := NewService(client, testInvoker(), WithNotificationChannel(&NotificationChannel{TopicARN: "arn:topic", RoleARN: "arn:role"}))

	_, err := svc.Submit(context.Background(), loc, nil)
	require.NoError(t, err)

	// An explicit channel wins over the default.
	_, err = NewService(client, testInvoker()).Submit(context.Background(), loc, &NotificationChannel{TopicARN: "arn:topic", RoleARN: "arn:role"})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSubmitRetriesThenFails(t *testing.T) {
	throttled := &smithy.GenericAPIError{Code: "ThrottlingException", Fault: smithy.FaultClient}
	client := &mockRekognition{}
	client.On("StartLabelDetection", mock.Anything, mock.Anything).Return(nil, throttled).Times(3)

	_, err := NewService(client, testInvoker()).Submit(context.Background(), loc, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, throttled)
	client.AssertNumberOfCalls(t, "StartLabelDetection", 3)
}

func TestSubmitEmptyJobID(t *testing.T) {
	client := &mockRekognition{}
	client.On("StartLabelDetection", mock.Anything, mock.Anything).Return(&rekognition.StartLabelDetectionOutput{}, nil)

	_, err := NewService(client, testInvoker()).Submit(context.Background(), loc, nil)
	assert.Error(t, err)
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name       string
		out        *rekognition.GetLabelDetectionOutput
		wantStatus JobStatus
		wantMeta   string
		wantLabels int
	}{
		{
			name:       "in progress",
			out:        &rekognition.GetLabelDetectionOutput{JobStatus: rtypes.VideoJobStatusInProgress},
			wantStatus: StatusInProgress,
			wantMeta:   `{}`,
		},
		{
			name: "succeeded with labels",
			out: &rekognition.GetLabelDetectionOutput{
				JobStatus:     rtypes.VideoJobStatusSucceeded,
				VideoMetadata: &rtypes.VideoMetadata{DurationMillis: aws.Int64(12000)},
				Labels:        []rtypes.LabelDetection{rawLabel("Tree", 90, 1000)},
			},
			wantStatus: StatusSucceeded,
			wantLabels: 1,
		},
		{
			name:       "missing status",
			out:        &rekognition.GetLabelDetectionOutput{},
			wantStatus: StatusUnknown,
			wantMeta:   `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockRekognition{}
			client.On("GetLabelDetection", mock.Anything, mock.MatchedBy(func(in *rekognition.GetLabelDetectionInput) bool {
				return aws.ToString(in.JobId) == "job-1"
			})).Return(tt.out, nil)

			report, err := NewService(client, testInvoker()).Poll(context.Background(), "job-1")
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, report.JobStatus)
			assert.Len(t, report.Labels, tt.wantLabels)
			assert.NotNil(t, report.Labels)
			if tt.wantMeta != "" {
				assert.JSONEq(t, tt.wantMeta, string(report.VideoMetadata))
			} else {
				var meta map[string]any
				require.NoError(t, json.Unmarshal(report.VideoMetadata, &meta))
				assert.EqualValues(t, 12000, meta["DurationMillis"])
			}
		})
	}
}

func TestFinalize(t *testing.T) {
	client := &mockRekognition{}
	client.On("GetLabelDetection", mock.Anything, mock.Anything).Return(&rekognition.GetLabelDetectionOutput{
		JobStatus:     rtypes.VideoJobStatusSucceeded,
		VideoMetadata: &rtypes.VideoMetadata{DurationMillis: aws.Int64(30500)},
		Labels: []rtypes.LabelDetection{
			rawLabel("Grass", 10, 0),
			rawLabel("Tree", 99, 5000),
			rawLabel("Sky", 50, 2500),
		},
	}, nil).Once()

	analysis, err := NewService(client, testInvoker()).Finalize(context.Background(), "job-1", loc)
	require.NoError(t, err)

	assert.Equal(t, loc, analysis.Location)
	require.NotNil(t, analysis.Duration)
	assert.InDelta(t, 30.5, *analysis.Duration, 1e-9)
	require.Len(t, analysis.Labels, 3)
	assert.Equal(t, "Grass", analysis.Labels[0].Name, "labels keep arrival order")
	assert.Equal(t, 3, analysis.Summary.TotalLabels)
	assert.Equal(t, []TopLabel{{"Tree", 99}, {"Sky", 50}, {"Grass", 10}}, analysis.Summary.TopLabels)
	assert.False(t, analysis.Summary.HasModerationIssues)
	assert.Empty(t, analysis.ModerationFlags)
	client.AssertNumberOfCalls(t, "GetLabelDetection", 1)
}

func TestFinalizeNotSucceeded(t *testing.T) {
	tests := []struct {
		name        string
		out         *rekognition.GetLabelDetectionOutput
		wantStatus  JobStatus
		wantMessage string
	}{
		{
			name:        "failed with message",
			out:         &rekognition.GetLabelDetectionOutput{JobStatus: rtypes.VideoJobStatusFailed, StatusMessage: aws.String("Unsupported codec")},
			wantStatus:  StatusFailed,
			wantMessage: "Unsupported codec",
		},
		{
			name:        "failed without message",
			out:         &rekognition.GetLabelDetectionOutput{JobStatus: rtypes.VideoJobStatusFailed},
			wantStatus:  StatusFailed,
			wantMessage: "Unknown error",
		},
		{
			name:        "failed with empty message",
			out:         &rekognition.GetLabelDetectionOutput{JobStatus: rtypes.VideoJobStatusFailed, StatusMessage: aws.String("")},
			wantStatus:  StatusFailed,
			wantMessage: "",
		},
		{
			name:        "still in progress",
			out:         &rekognition.GetLabelDetectionOutput{JobStatus: rtypes.VideoJobStatusInProgress},
			wantStatus:  StatusInProgress,
			wantMessage: "Unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockRekognition{}
			client.On("GetLabelDetection", mock.Anything, mock.Anything).Return(tt.out, nil)

			_, err := NewService(client, testInvoker()).Finalize(context.Background(), "job-9", loc)

			var notSucceeded *JobNotSucceededError
			require.True(t, errors.As(err, &notSucceeded))
			assert.Equal(t, "job-9", notSucceeded.JobID)
			assert.Equal(t, tt.wantStatus, notSucceeded.Status)
			assert.Equal(t, tt.wantMessage, notSucceeded.Message)
			assert.Contains(t, err.Error(), "job-9")
			client.AssertNumberOfCalls(t, "GetLabelDetection", 1)
		})
	}
}

func TestFailedReport(t *testing.T) {
	report := FailedReport(errors.New("job_id is required"))
	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{"JobStatus":"FAILED","StatusMessage":"job_id is required","VideoMetadata":{},"Labels":[]}`, string(data))
}

func TestJobJSONShape(t *testing.T) {
	data, err := json.Marshal(Job{ID: "j", Status: StatusInProgress, Location: loc})
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_id":"j","status":"IN_PROGRESS","video_s3_bucket":"bucket","video_s3_key":"`+loc.Key+`"}`, string(data))
}
