package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/index"
	"github.com/media-pipelines/media-pipelines-go/internal/metrics"
	"github.com/media-pipelines/media-pipelines-go/internal/storage"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// IndexItem is a processed file to record.
type IndexItem struct {
	S3Key        string
	ProcessedKey string
	Metadata     any
}

// Indexer writes processed items to the metadata index.
type Indexer struct {
	index index.Index
	ttl   time.Duration
	now   func() time.Time
}

// NewIndexer creates an indexer. A zero ttl means index.DefaultTTL.
func NewIndexer(idx index.Index, ttl time.Duration) *Indexer {
	return &Indexer{
		index: idx,
		ttl:   ttl,
		now:   time.Now,
	}
}

// IndexResults records every item that has both keys and returns how many
// were written. The batch token is read back from the raw key.
func (i *Indexer) IndexResults(ctx context.Context, mediaType, campaign string, items []IndexItem) int {
	indexed := 0
	for _, item := range items {
		if item.S3Key == "" || item.ProcessedKey == "" {
			metrics.BatchItemsTotal.WithLabelValues(mediaType+"_index", metrics.StatusSkipped).Inc()
			continue
		}

		record, err := index.NewRecord(index.Entry{
			MediaType:    mediaType,
			Campaign:     campaign,
			S3Key:        item.S3Key,
			ProcessedKey: item.ProcessedKey,
			IngestedAt:   storage.IngestedAtFromKey(item.S3Key),
			Metadata:     item.Metadata,
		}, i.now(), i.ttl)
		if err == nil {
			err = i.index.Put(ctx, record)
		}
		if err != nil {
			metrics.BatchItemsTotal.WithLabelValues(mediaType+"_index", metrics.StatusFailed).Inc()
			logger.Log.Error("Failed to index processed file",
				zap.String("media_type", mediaType),
				zap.String("key", item.S3Key),
				zap.Error(err),
			)
			continue
		}

		metrics.BatchItemsTotal.WithLabelValues(mediaType+"_index", metrics.StatusSuccess).Inc()
		indexed++
	}

	logger.Log.Info("Indexed processed files",
		zap.String("media_type", mediaType),
		zap.String("campaign", campaign),
		zap.Int("count", indexed),
	)
	return indexed
}
