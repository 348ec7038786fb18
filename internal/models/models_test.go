package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/media-pipelines/media-pipelines-go/internal/ingest"
)

func TestFlexInt(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		absent  bool
		wantErr bool
	}{
		{name: "number", body: `{"batch_size_video": 3}`, want: 3},
		{name: "string", body: `{"batch_size_video": "4"}`, want: 4},
		{name: "whole float", body: `{"batch_size_video": 2.0}`, want: 2},
		{name: "absent", body: `{}`, absent: true},
		{name: "null", body: `{"batch_size_video": null}`, absent: true},
		{name: "fraction", body: `{"batch_size_video": 2.5}`, wantErr: true},
		{name: "garbage", body: `{"batch_size_video": "many"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req IngestRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.absent {
				assert.Nil(t, req.BatchSizeVideo)
				assert.Equal(t, DefaultVideoBatchSize, IntOr(req.BatchSizeVideo, DefaultVideoBatchSize))
				return
			}
			require.NotNil(t, req.BatchSizeVideo)
			assert.Equal(t, tt.want, IntOr(req.BatchSizeVideo, DefaultVideoBatchSize))
		})
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	var req VideoIndexRequest
	err := json.Unmarshal([]byte(`{
		"campaign": "nature",
		"extra": {"nested": true},
		"finalization": {"processed_count": 1, "results": [{"job_id": "j", "video_s3_key": "k", "processed_key": "p", "summary": {"total_labels": 2}}]}
	}`), &req)
	require.NoError(t, err)
	require.Len(t, req.Finalization.Results, 1)
	assert.Equal(t, "k", req.Finalization.Results[0].VideoKey)
	assert.Equal(t, 2, req.Finalization.Results[0].Summary.TotalLabels)
}

func TestErrorResponseShape(t *testing.T) {
	data, err := json.Marshal(VideoIngestResponse{Error: "boom", Campaign: UnknownCampaign, Metadata: []ingest.VideoMetadata{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"boom","campaign":"unknown","ingested_count":0,"metadata":[]}`, string(data))

	data, err = json.Marshal(IndexResponse{IndexedCount: 2, Campaign: "nature"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"indexed_count":2,"campaign":"nature"}`, string(data))
}

func TestCampaignOr(t *testing.T) {
	assert.Equal(t, "nature", CampaignOr("nature", DefaultCampaign))
	assert.Equal(t, DefaultCampaign, CampaignOr("", DefaultCampaign))
}
