package ingest

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
)

const (
	// FreesoundAPIURL is the Freesound APIv2 root.
	FreesoundAPIURL = "https://freesound.org/apiv2"

	// SourceFreesound names the Freesound audio source.
	SourceFreesound = "freesound"

	freesoundFields  = "id,name,username,license,url,duration,filesize,tags,previews"
	freesoundFilter  = "duration:[0.5 TO 60]"
	freesoundLicense = `license:("Creative Commons 0" OR "Attribution")`
)

// FreesoundClient searches Freesound with token authentication.
type FreesoundClient struct {
	http *httpClient
}

// NewFreesoundClient creates a client. The API key comes from
// cfg.FreesoundAPIKey.
func NewFreesoundClient(cfg config.IngestConfig, opts ...ClientOption) *FreesoundClient {
	c := newHTTPClient(FreesoundAPIURL, cfg, opts)
	if cfg.FreesoundAPIKey != "" {
		c.headers.Set("Authorization", "Token "+cfg.FreesoundAPIKey)
	}
	return &FreesoundClient{http: c}
}

// Name implements AudioSource.
func (c *FreesoundClient) Name() string { return SourceFreesound }

type freesoundSearchResponse struct {
	Results []struct {
		ID       int64             `json:"id"`
		Name     string            `json:"name"`
		Username string            `json:"username"`
		License  string            `json:"license"`
		URL      string            `json:"url"`
		Duration float64           `json:"duration"`
		Filesize int64             `json:"filesize"`
		Tags     []string          `json:"tags"`
		Previews map[string]string `json:"previews"`
	} `json:"results"`
}

// SearchAudio returns short Creative Commons sounds with an MP3 preview.
func (c *FreesoundClient) SearchAudio(ctx context.Context, query string, limit int) ([]AudioCandidate, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("page_size", strconv.Itoa(limit))
	params.Set("fields", freesoundFields)
	params.Set("filter", freesoundFilter+" "+freesoundLicense)

	var resp freesoundSearchResponse
	if err := c.http.getJSON(ctx, "freesound search", "/search/text/", params, &resp); err != nil {
		return nil, err
	}

	var out []AudioCandidate
	for _, r := range resp.Results {
		if len(out) >= limit {
			break
		}
		preview := r.Previews["preview-hq-mp3"]
		if preview == "" {
			preview = r.Previews["preview-lq-mp3"]
		}
		if preview == "" {
			continue
		}

		id := strconv.FormatInt(r.ID, 10)
		out = append(out, AudioCandidate{
			ID:          id,
			Source:      SourceFreesound,
			Title:       strings.TrimSpace(r.Name),
			Author:      r.Username,
			License:     r.License,
			URL:         r.URL,
			DownloadURL: preview,
			Ext:         "mp3",
			Duration:    r.Duration,
			FileSize:    r.Filesize,
			Tags:        r.Tags,
		})
	}
	return out, nil
}

// Download fetches a preview file.
func (c *FreesoundClient) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return c.http.download(ctx, "freesound download", rawURL)
}
