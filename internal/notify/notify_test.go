package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
)

func TestNotificationSubjectAndRoutingKey(t *testing.T) {
	tests := []struct {
		n           Notification
		wantSubject string
		wantKey     string
	}{
		{
			n:           Notification{PipelineType: "video", Status: StatusSucceeded},
			wantSubject: "Media Pipeline VIDEO: SUCCEEDED",
			wantKey:     "pipeline.video.succeeded",
		},
		{
			n:           Notification{PipelineType: "Audio", Status: StatusFailed},
			wantSubject: "Media Pipeline AUDIO: FAILED",
			wantKey:     "pipeline.audio.failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.wantSubject, func(t *testing.T) {
			assert.Equal(t, tt.wantSubject, tt.n.Subject())
			assert.Equal(t, tt.wantKey, tt.n.RoutingKey())
		})
	}
}

func TestNotificationJSON(t *testing.T) {
	data, err := json.Marshal(Notification{PipelineType: "video", Campaign: "nature", Status: StatusSucceeded})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pipeline_type":"video","campaign":"nature","status":"SUCCEEDED","execution_arn":null}`, string(data))

	arn := "arn:aws:states:us-east-1:1:execution:x:y"
	count := 3
	data, err = json.Marshal(Notification{PipelineType: "audio", Campaign: "c", Status: StatusFailed, ExecutionARN: &arn, Error: "boom", Count: &count})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pipeline_type":"audio","campaign":"c","status":"FAILED","execution_arn":"`+arn+`","error":"boom","count":3}`, string(data))
}

func TestNewDisabledReturnsNop(t *testing.T) {
	n, err := New(config.NewForTest().RabbitMQ, retry.NewInvoker(retry.DefaultPolicy()))
	require.NoError(t, err)
	assert.IsType(t, NopNotifier{}, n)

	assert.NoError(t, n.Notify(context.Background(), Notification{PipelineType: "video"}))
	assert.NoError(t, n.Close())
}
