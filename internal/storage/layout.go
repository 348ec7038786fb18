package storage

import (
	"fmt"
	"strings"
	"time"
)

// Key layout: <stage>/<media type>/<campaign>/<ingested_at>/<file>.
const (
	RawPrefix       = "media-raw"
	ProcessedPrefix = "media-processed"

	// IngestedAtLayout formats the batch token shared by every item of one
	// ingestion run.
	IngestedAtLayout = "20060102_150405"
)

// Media types.
const (
	MediaTypeAudio = "audio"
	MediaTypeVideo = "video"
)

// IngestedAt renders the batch token for t in UTC.
func IngestedAt(t time.Time) string {
	return t.UTC().Format(IngestedAtLayout)
}

// RawKey builds the key of an ingested file.
func RawKey(mediaType, campaign, ingestedAt, name, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s.%s", RawPrefix, mediaType, campaign, ingestedAt, name, ext)
}

// CampaignPrefix is the listing prefix for one campaign, or for every
// campaign of a media type when campaign is empty.
func CampaignPrefix(stage, mediaType, campaign string) string {
	if campaign == "" {
		return fmt.Sprintf("%s/%s/", stage, mediaType)
	}
	return fmt.Sprintf("%s/%s/%s/", stage, mediaType, campaign)
}

// ProcessedVideoKey maps a raw video key to the key of its label analysis.
func ProcessedVideoKey(rawKey string) string {
	key := strings.ReplaceAll(rawKey, RawPrefix, ProcessedPrefix)
	key = strings.ReplaceAll(key, ".mp4", "_labels.json")
	return strings.ReplaceAll(key, ".webm", "_labels.json")
}

// ProcessedAudioKey maps a raw audio key to the key of its analysis summary.
func ProcessedAudioKey(rawKey string) string {
	key := strings.ReplaceAll(rawKey, RawPrefix, ProcessedPrefix)
	for _, ext := range []string{".mp3", ".ogg"} {
		key = strings.ReplaceAll(key, ext, "_summary.json")
	}
	return key
}

// IngestedAtFromKey returns the second-to-last path segment, which holds the
// batch token in raw keys. Keys with a single segment yield "".
func IngestedAtFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// CampaignFromKey returns the campaign segment of a raw or processed key.
func CampaignFromKey(key string) (string, bool) {
	parts := strings.Split(key, "/")
	if len(parts) < 4 || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
