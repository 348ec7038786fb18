package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/internal/storage"
)

type fakeVideoSource struct {
	results   []VideoCandidate
	searchErr error
	files     map[string][]byte
	failures  map[string]int
	downloads int
}

func (f *fakeVideoSource) SearchVideos(_ context.Context, _ string, limit int) ([]VideoCandidate, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeVideoSource) Download(_ context.Context, rawURL string) ([]byte, error) {
	f.downloads++
	if f.failures[rawURL] > 0 {
		f.failures[rawURL]--
		return nil, &retry.TransientError{Op: "download", StatusCode: 503, Err: errors.New("unavailable")}
	}
	data, ok := f.files[rawURL]
	if !ok {
		return nil, &HTTPError{Op: "download", StatusCode: 404}
	}
	return data, nil
}

type fakeAudioSource struct {
	name    string
	results []AudioCandidate
	files   map[string][]byte
}

func (f *fakeAudioSource) Name() string { return f.name }

func (f *fakeAudioSource) SearchAudio(context.Context, string, int) ([]AudioCandidate, error) {
	return f.results, nil
}

func (f *fakeAudioSource) Download(_ context.Context, rawURL string) ([]byte, error) {
	data, ok := f.files[rawURL]
	if !ok {
		return nil, &HTTPError{Op: "download", StatusCode: 404}
	}
	return data, nil
}

var (
	testBuckets = storage.Buckets{Audio: "audio-bucket", Video: "video-bucket"}
	fixedNow    = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
)

func testInvoker() *retry.Invoker {
	return retry.NewInvoker(retry.DefaultPolicy(), retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
}

func TestIngestVideos(t *testing.T) {
	source := &fakeVideoSource{
		results: []VideoCandidate{
			{Title: "File:River flow.mp4", URL: "u1", Mime: "video/mp4", Size: 100, Author: "Sam", License: "cc0"},
			{Title: "File:Missing.webm", URL: "u2", Mime: "video/webm"},
			{Title: "File:Forest.webm", URL: "u3", Mime: "video/webm", Author: "Zoë", License: "cc-by-sa-4.0"},
		},
		files:    map[string][]byte{"u1": []byte("mp4-bytes"), "u3": []byte("webm-bytes")},
		failures: map[string]int{"u3": 2},
	}
	store := storage.NewMemoryStore()
	ing := NewIngester(store, testInvoker(), testBuckets, source, nil, WithClock(func() time.Time { return fixedNow }))

	items, err := ing.IngestVideos(context.Background(), "nature", 3)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "media-raw/video/nature/20250304_050607/River_flow.mp4", items[0].S3Key)
	assert.Equal(t, int64(100), items[0].FileSize)
	assert.Nil(t, items[0].Duration)
	assert.Equal(t, "20250304_050607", items[0].IngestedAt)

	assert.Equal(t, "media-raw/video/nature/20250304_050607/Forest.webm", items[1].S3Key)
	assert.Equal(t, int64(len("webm-bytes")), items[1].FileSize, "size falls back to the downloaded length")

	obj, ok := store.Object("video-bucket", items[1].S3Key)
	require.True(t, ok)
	assert.Equal(t, "video/webm", obj.ContentType)
	assert.Equal(t, "Zo", obj.Tags["author"], "non-ASCII is dropped from object metadata")
	assert.Equal(t, "File:Forest.webm", obj.Tags["wikimedia_title"])

	// u1 once, u2 once (not retried), u3 twice failing then once succeeding
	assert.Equal(t, 5, source.downloads)
	assert.Equal(t, 2, store.Len())
}

func TestIngestVideosSearchFailure(t *testing.T) {
	source := &fakeVideoSource{searchErr: &HTTPError{Op: "wikimedia search", StatusCode: 400}}
	ing := NewIngester(storage.NewMemoryStore(), testInvoker(), testBuckets, source, nil)

	_, err := ing.IngestVideos(context.Background(), "nature", 2)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
}

func TestIngestVideosEmpty(t *testing.T) {
	ing := NewIngester(storage.NewMemoryStore(), testInvoker(), testBuckets, &fakeVideoSource{}, nil)

	items, err := ing.IngestVideos(context.Background(), "nature", 2)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestIngestAudio(t *testing.T) {
	source := &fakeAudioSource{
		name: SourceFreesound,
		results: []AudioCandidate{
			{ID: "42", Source: SourceFreesound, Title: "Birds", Author: "kim", License: "cc0", DownloadURL: "d42", Ext: "mp3", Duration: 12.5},
			{ID: "43", Source: SourceFreesound, DownloadURL: "missing", Ext: "mp3"},
		},
		files: map[string][]byte{"d42": []byte("ID3audio")},
	}
	store := storage.NewMemoryStore()
	ing := NewIngester(store, testInvoker(), testBuckets, nil, source, WithClock(func() time.Time { return fixedNow }))

	items, err := ing.IngestAudio(context.Background(), "birds", 2)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "media-raw/audio/birds/20250304_050607/42.mp3", item.S3Key)
	assert.Equal(t, "42", item.ArchiveID)
	assert.Equal(t, "42", item.FreesoundID)
	assert.Equal(t, int64(len("ID3audio")), item.FileSize)
	assert.Equal(t, []string{}, item.Tags)

	obj, ok := store.Object("audio-bucket", item.S3Key)
	require.True(t, ok)
	assert.Equal(t, "audio/mpeg", obj.ContentType)
	assert.Equal(t, "42", obj.Tags["freesound_id"])
}

func TestVideoFileName(t *testing.T) {
	assert.Equal(t, "Some_clip", videoFileName("File:Some clip.webm"))
	assert.Equal(t, "a_b", videoFileName("File:a/b.ogv"))
	assert.Equal(t, "plain", videoFileName("plain"))
}
