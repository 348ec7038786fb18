package ingest

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
)

const (
	// WikimediaAPIURL is the Commons action API endpoint.
	WikimediaAPIURL = "https://commons.wikimedia.org/w/api.php"

	wikimediaLicenseCategories = "Category:CC-BY-4.0|Category:CC-BY-SA-4.0|Category:CC0"
)

// WikimediaClient searches Wikimedia Commons for openly licensed videos.
type WikimediaClient struct {
	http *httpClient
}

// NewWikimediaClient creates a client for the Commons API.
func NewWikimediaClient(cfg config.IngestConfig, opts ...ClientOption) *WikimediaClient {
	return &WikimediaClient{http: newHTTPClient(WikimediaAPIURL, cfg, opts)}
}

type wikimediaResponse struct {
	Query struct {
		Pages map[string]wikimediaPage `json:"pages"`
	} `json:"query"`
}

type wikimediaPage struct {
	Index     int    `json:"index"`
	Title     string `json:"title"`
	ImageInfo []struct {
		URL         string                    `json:"url"`
		Size        int64                     `json:"size"`
		Mime        string                    `json:"mime"`
		ExtMetadata map[string]extMetadataVal `json:"extmetadata"`
	} `json:"imageinfo"`
	Categories []struct {
		Title string `json:"title"`
	} `json:"categories"`
}

type extMetadataVal struct {
	Value any `json:"value"`
}

func (v extMetadataVal) String() string {
	switch val := v.Value.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

// SearchVideos returns at most limit video files whose licence category is
// Creative Commons. Results keep the search ranking.
func (c *WikimediaClient) SearchVideos(ctx context.Context, query string, limit int) ([]VideoCandidate, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", query+" filetype:video")
	params.Set("gsrnamespace", "6")
	params.Set("gsrlimit", strconv.Itoa(limit))
	params.Set("prop", "imageinfo|categories")
	params.Set("iiprop", "url|size|mime|extmetadata")
	params.Set("clcategories", wikimediaLicenseCategories)
	params.Set("cllimit", "50")

	var resp wikimediaResponse
	if err := c.http.getJSON(ctx, "wikimedia search", "", params, &resp); err != nil {
		return nil, err
	}

	pages := make([]wikimediaPage, 0, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Index != pages[j].Index {
			return pages[i].Index < pages[j].Index
		}
		return pages[i].Title < pages[j].Title
	})

	var out []VideoCandidate
	for _, p := range pages {
		if len(out) >= limit {
			break
		}
		if len(p.ImageInfo) == 0 {
			continue
		}
		info := p.ImageInfo[0]
		if !strings.HasPrefix(info.Mime, "video/") || !hasCCCategory(p) {
			continue
		}

		out = append(out, VideoCandidate{
			Title:       p.Title,
			URL:         info.URL,
			Mime:        info.Mime,
			Size:        info.Size,
			Author:      info.ExtMetadata["Artist"].String(),
			License:     info.ExtMetadata["License"].String(),
			Description: info.ExtMetadata["ImageDescription"].String(),
		})
	}
	return out, nil
}

// Download fetches a file from upload.wikimedia.org.
func (c *WikimediaClient) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return c.http.download(ctx, "wikimedia download", rawURL)
}

func hasCCCategory(p wikimediaPage) bool {
	for _, cat := range p.Categories {
		if strings.HasPrefix(cat.Title, "Category:CC") {
			return true
		}
	}
	return false
}
