package storage

import (
	"context"
	"fmt"
	"slices"
)

// DefaultCampaigns is reported when no media has been ingested yet.
var DefaultCampaigns = []string{"nature", "tech", "travel"}

// Buckets names where each media type lives.
type Buckets struct {
	Audio string
	Video string
}

func (b Buckets) For(mediaType string) string {
	if mediaType == MediaTypeAudio {
		return b.Audio
	}
	return b.Video
}

// AssetCounts is the number of raw and processed objects per media type.
type AssetCounts struct {
	AudioRaw       int `json:"audio_raw"`
	AudioProcessed int `json:"audio_processed"`
	VideoRaw       int `json:"video_raw"`
	VideoProcessed int `json:"video_processed"`
}

// Catalog answers browsing questions from the key layout alone.
type Catalog struct {
	store   BlobStore
	buckets Buckets
}

func NewCatalog(store BlobStore, buckets Buckets) *Catalog {
	return &Catalog{store: store, buckets: buckets}
}

// Campaigns lists the distinct campaigns that have raw media, sorted.
func (c *Catalog) Campaigns(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, mediaType := range []string{MediaTypeAudio, MediaTypeVideo} {
		for key, err := range c.store.ListKeys(ctx, c.buckets.For(mediaType), CampaignPrefix(RawPrefix, mediaType, "")) {
			if err != nil {
				return nil, err
			}
			if campaign, ok := CampaignFromKey(key); ok {
				seen[campaign] = struct{}{}
			}
		}
	}

	if len(seen) == 0 {
		return slices.Clone(DefaultCampaigns), nil
	}

	campaigns := make([]string, 0, len(seen))
	for campaign := range seen {
		campaigns = append(campaigns, campaign)
	}
	slices.Sort(campaigns)
	return campaigns, nil
}

// Counts returns the asset counts for one campaign.
func (c *Catalog) Counts(ctx context.Context, campaign string) (AssetCounts, error) {
	var counts AssetCounts
	targets := []struct {
		stage, mediaType string
		dst              *int
	}{
		{RawPrefix, MediaTypeAudio, &counts.AudioRaw},
		{ProcessedPrefix, MediaTypeAudio, &counts.AudioProcessed},
		{RawPrefix, MediaTypeVideo, &counts.VideoRaw},
		{ProcessedPrefix, MediaTypeVideo, &counts.VideoProcessed},
	}

	for _, target := range targets {
		for _, err := range c.store.ListKeys(ctx, c.buckets.For(target.mediaType), CampaignPrefix(target.stage, target.mediaType, campaign)) {
			if err != nil {
				return AssetCounts{}, err
			}
			*target.dst++
		}
	}
	return counts, nil
}

// LatestProcessed returns the lexically greatest processed key for the
// campaign and its contents. Batch tokens sort chronologically, so this is
// the most recent result. ok is false when nothing has been processed.
func (c *Catalog) LatestProcessed(ctx context.Context, campaign, mediaType string) (key string, data []byte, ok bool, err error) {
	bucket := c.buckets.For(mediaType)
	for k, listErr := range c.store.ListKeys(ctx, bucket, CampaignPrefix(ProcessedPrefix, mediaType, campaign)) {
		if listErr != nil {
			return "", nil, false, listErr
		}
		if k > key {
			key = k
		}
	}
	if key == "" {
		return "", nil, false, nil
	}

	data, err = c.store.Download(ctx, bucket, key)
	if err != nil {
		return "", nil, false, fmt.Errorf("read latest summary: %w", err)
	}
	return key, data, true, nil
}
