package app

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/media-pipelines/media-pipelines-go/internal/awsclient"
	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/index"
	"github.com/media-pipelines/media-pipelines-go/internal/ingest"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
)

func TestAudioSource(t *testing.T) {
	cfg := config.NewForTest().Ingest
	assert.Equal(t, ingest.SourceInternetArchive, AudioSource(cfg, retry.NewInvoker(retry.DefaultPolicy())).Name())

	cfg.FreesoundAPIKey = "key"
	assert.Equal(t, ingest.SourceFreesound, AudioSource(cfg, retry.NewInvoker(retry.DefaultPolicy())).Name())
}

func TestBuild(t *testing.T) {
	cfg := config.NewForTest()
	clients := awsclient.NewFromConfig(aws.Config{Region: "us-east-1"}, "http://localhost:4566")

	a, err := Build(context.Background(), cfg, clients)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.IsType(t, &index.DynamoIndex{}, a.Index)
	assert.NotNil(t, a.Catalog)
	assert.Len(t, a.Pipeline.Names(), 8)

	names := make([]string, 0, len(a.Checks))
	for _, c := range a.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"s3", "dynamodb"}, names)
}
