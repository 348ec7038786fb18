package ingest

import (
	"context"
	"path"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/metrics"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/internal/storage"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

const maxTagLength = 256

// Ingester downloads search hits and stores them under the raw prefix.
type Ingester struct {
	video   VideoSource
	audio   AudioSource
	store   storage.BlobStore
	invoker *retry.Invoker
	buckets storage.Buckets
	now     func() time.Time
}

// IngesterOption customises an Ingester.
type IngesterOption func(*Ingester)

// WithClock replaces time.Now for the batch token.
func WithClock(now func() time.Time) IngesterOption {
	return func(i *Ingester) {
		i.now = now
	}
}

// NewIngester creates an ingester. Either source may be nil when the
// corresponding pipeline is not served.
func NewIngester(store storage.BlobStore, invoker *retry.Invoker, buckets storage.Buckets, video VideoSource, audio AudioSource, opts ...IngesterOption) *Ingester {
	i := &Ingester{
		video:   video,
		audio:   audio,
		store:   store,
		invoker: invoker,
		buckets: buckets,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestVideos searches for campaign and stores up to batchSize videos.
// A failed item is logged and left out; only a failed search is an error.
func (i *Ingester) IngestVideos(ctx context.Context, campaign string, batchSize int) ([]VideoMetadata, error) {
	logger.Log.Info("Searching Wikimedia Commons",
		zap.String("campaign", campaign),
		zap.Int("batch_size", batchSize),
	)

	results, err := retry.Do(ctx, i.invoker, "wikimedia.search", func(ctx context.Context) ([]VideoCandidate, error) {
		return i.video.SearchVideos(ctx, campaign, batchSize)
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		logger.Log.Warn("No videos found for campaign", zap.String("campaign", campaign))
		return []VideoMetadata{}, nil
	}

	ingestedAt := storage.IngestedAt(i.now())
	out := make([]VideoMetadata, 0, len(results))
	for _, video := range results {
		meta, err := i.ingestVideo(ctx, campaign, ingestedAt, video)
		if err != nil {
			metrics.BatchItemsTotal.WithLabelValues("video_ingest", metrics.StatusFailed).Inc()
			logger.Log.Error("Failed to ingest video",
				zap.String("title", video.Title),
				zap.Error(err),
			)
			continue
		}
		metrics.BatchItemsTotal.WithLabelValues("video_ingest", metrics.StatusSuccess).Inc()
		out = append(out, meta)
	}

	logger.Log.Info("Ingested video files",
		zap.String("campaign", campaign),
		zap.Int("count", len(out)),
	)
	return out, nil
}

func (i *Ingester) ingestVideo(ctx context.Context, campaign, ingestedAt string, video VideoCandidate) (VideoMetadata, error) {
	data, err := retry.Do(ctx, i.invoker, "wikimedia.download", func(ctx context.Context) ([]byte, error) {
		return i.video.Download(ctx, video.URL)
	})
	if err != nil {
		return VideoMetadata{}, err
	}

	mime := video.Mime
	if mime == "" {
		mime = contentType("", data)
	}
	ext := "webm"
	if strings.Contains(mime, "mp4") {
		ext = "mp4"
	}

	key := storage.RawKey(storage.MediaTypeVideo, campaign, ingestedAt, videoFileName(video.Title), ext)
	err = i.store.Upload(ctx, storage.Object{
		Bucket:      i.buckets.Video,
		Key:         key,
		Data:        data,
		ContentType: mime,
		Tags: sanitizeTags(map[string]string{
			"wikimedia_title": video.Title,
			"license":         video.License,
			"author":          video.Author,
		}),
	})
	if err != nil {
		return VideoMetadata{}, err
	}

	size := video.Size
	if size == 0 {
		size = int64(len(data))
	}
	return VideoMetadata{
		WikimediaTitle: video.Title,
		FileURL:        video.URL,
		License:        video.License,
		Author:         video.Author,
		Description:    video.Description,
		FileSize:       size,
		S3Key:          key,
		IngestedAt:     ingestedAt,
	}, nil
}

// IngestAudio searches the configured audio source and stores up to
// batchSize files.
func (i *Ingester) IngestAudio(ctx context.Context, campaign string, batchSize int) ([]AudioMetadata, error) {
	source := i.audio.Name()
	logger.Log.Info("Searching audio source",
		zap.String("source", source),
		zap.String("campaign", campaign),
		zap.Int("batch_size", batchSize),
	)

	results, err := retry.Do(ctx, i.invoker, source+".search", func(ctx context.Context) ([]AudioCandidate, error) {
		return i.audio.SearchAudio(ctx, campaign, batchSize)
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		logger.Log.Warn("No audio found for campaign", zap.String("campaign", campaign))
		return []AudioMetadata{}, nil
	}

	ingestedAt := storage.IngestedAt(i.now())
	out := make([]AudioMetadata, 0, len(results))
	for _, item := range results {
		meta, err := i.ingestAudio(ctx, campaign, ingestedAt, item)
		if err != nil {
			metrics.BatchItemsTotal.WithLabelValues("audio_ingest", metrics.StatusFailed).Inc()
			logger.Log.Error("Failed to ingest audio",
				zap.String("id", item.ID),
				zap.String("source", item.Source),
				zap.Error(err),
			)
			continue
		}
		metrics.BatchItemsTotal.WithLabelValues("audio_ingest", metrics.StatusSuccess).Inc()
		out = append(out, meta)
	}

	logger.Log.Info("Ingested audio files",
		zap.String("campaign", campaign),
		zap.Int("count", len(out)),
	)
	return out, nil
}

func (i *Ingester) ingestAudio(ctx context.Context, campaign, ingestedAt string, item AudioCandidate) (AudioMetadata, error) {
	data, err := retry.Do(ctx, i.invoker, item.Source+".download", func(ctx context.Context) ([]byte, error) {
		return i.audio.Download(ctx, item.DownloadURL)
	})
	if err != nil {
		return AudioMetadata{}, err
	}

	ext := item.Ext
	if ext == "" {
		ext = "mp3"
	}
	key := storage.RawKey(storage.MediaTypeAudio, campaign, ingestedAt, safeName(item.ID), ext)

	tags := map[string]string{
		"title":   item.Title,
		"author":  item.Author,
		"license": item.License,
		"source":  item.Source,
	}
	if item.Source == SourceFreesound {
		tags["freesound_id"] = item.ID
	} else {
		tags["archive_id"] = item.ID
	}

	err = i.store.Upload(ctx, storage.Object{
		Bucket:      i.buckets.Audio,
		Key:         key,
		Data:        data,
		ContentType: contentType(audioMime(ext), data),
		Tags:        sanitizeTags(tags),
	})
	if err != nil {
		return AudioMetadata{}, err
	}

	size := item.FileSize
	if size == 0 {
		size = int64(len(data))
	}
	tagList := item.Tags
	if tagList == nil {
		tagList = []string{}
	}
	meta := AudioMetadata{
		ArchiveID:  item.ID,
		Source:     item.Source,
		Title:      item.Title,
		Author:     item.Author,
		License:    item.License,
		URL:        item.URL,
		Duration:   item.Duration,
		FileSize:   size,
		Tags:       tagList,
		S3Key:      key,
		IngestedAt: ingestedAt,
	}
	if item.Source == SourceFreesound {
		meta.FreesoundID = item.ID
	}
	return meta, nil
}

// videoFileName turns "File:Some clip.webm" into "Some_clip".
func videoFileName(title string) string {
	name := strings.TrimPrefix(title, "File:")
	name = strings.TrimSuffix(name, path.Ext(name))
	return safeName(name)
}

func safeName(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
	return strings.ReplaceAll(s, "/", "_")
}

func audioMime(ext string) string {
	switch ext {
	case "ogg":
		return "audio/ogg"
	case "mp3":
		return "audio/mpeg"
	default:
		return ""
	}
}

// sanitizeTags keeps object metadata within what S3 accepts in headers:
// printable ASCII, bounded length.
func sanitizeTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		var b strings.Builder
		for _, r := range v {
			if r < unicode.MaxASCII && unicode.IsPrint(r) {
				b.WriteRune(r)
			}
		}
		clean := strings.TrimSpace(b.String())
		if len(clean) > maxTagLength {
			clean = clean[:maxTagLength]
		}
		out[k] = clean
	}
	return out
}
