package ingest

import "context"

// VideoMetadata describes one ingested video.
type VideoMetadata struct {
	WikimediaTitle string   `json:"wikimedia_title"`
	FileURL        string   `json:"file_url"`
	License        string   `json:"license"`
	Author         string   `json:"author"`
	Description    string   `json:"description"`
	Duration       *float64 `json:"duration"`
	FileSize       int64    `json:"file_size"`
	S3Key          string   `json:"s3_key"`
	IngestedAt     string   `json:"ingested_at"`
}

// AudioMetadata describes one ingested audio file. ArchiveID holds the
// source identifier for both Internet Archive and Freesound items.
type AudioMetadata struct {
	ArchiveID   string   `json:"archive_id"`
	FreesoundID string   `json:"freesound_id,omitempty"`
	Source      string   `json:"source,omitempty"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	License     string   `json:"license"`
	URL         string   `json:"url"`
	Duration    float64  `json:"duration"`
	FileSize    int64    `json:"file_size"`
	Tags        []string `json:"tags"`
	S3Key       string   `json:"s3_key"`
	IngestedAt  string   `json:"ingested_at"`
}

// VideoCandidate is a search hit that passed the licence and MIME filters.
type VideoCandidate struct {
	Title       string
	URL         string
	Mime        string
	Size        int64
	Author      string
	License     string
	Description string
}

// AudioCandidate is a downloadable audio search hit.
type AudioCandidate struct {
	ID          string
	Source      string
	Title       string
	Author      string
	License     string
	URL         string
	DownloadURL string
	Ext         string
	Duration    float64
	FileSize    int64
	Tags        []string
}

// VideoSource finds and downloads openly licensed videos.
type VideoSource interface {
	SearchVideos(ctx context.Context, query string, limit int) ([]VideoCandidate, error)
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// AudioSource finds and downloads openly licensed audio.
type AudioSource interface {
	Name() string
	SearchAudio(ctx context.Context, query string, limit int) ([]AudioCandidate, error)
	Download(ctx context.Context, rawURL string) ([]byte, error)
}
