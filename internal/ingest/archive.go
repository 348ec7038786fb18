package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// ArchiveBaseURL is the Internet Archive host.
const ArchiveBaseURL = "https://archive.org"

// SourceInternetArchive names the Internet Archive audio source.
const SourceInternetArchive = "internet_archive"

// archiveFormats lists acceptable file formats, best first.
var archiveFormats = []string{"VBR MP3", "128Kbps MP3", "64Kbps MP3", "Ogg Vorbis"}

// ArchiveClient searches the Internet Archive for Creative Commons audio.
// The search itself is retried by the caller; the per-item metadata lookups
// are retried here with invoker.
type ArchiveClient struct {
	http    *httpClient
	invoker *retry.Invoker
}

// NewArchiveClient creates an Internet Archive client.
func NewArchiveClient(cfg config.IngestConfig, invoker *retry.Invoker, opts ...ClientOption) *ArchiveClient {
	return &ArchiveClient{http: newHTTPClient(ArchiveBaseURL, cfg, opts), invoker: invoker}
}

// Name implements AudioSource.
func (c *ArchiveClient) Name() string { return SourceInternetArchive }

// flexString decodes a JSON string or the first element of a string array.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*f = flexString(list[0])
	}
	return nil
}

// flexStrings decodes a JSON string or string array into a slice.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "" {
			*f = []string{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*f = list
	return nil
}

type archiveSearchResponse struct {
	Response struct {
		Docs []struct {
			Identifier string     `json:"identifier"`
			Title      flexString `json:"title"`
			Creator    flexString `json:"creator"`
			LicenseURL flexString `json:"licenseurl"`
		} `json:"docs"`
	} `json:"response"`
}

type archiveFile struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Size   string `json:"size"`
	Length string `json:"length"`
}

type archiveMetadata struct {
	Files    []archiveFile `json:"files"`
	Metadata struct {
		Subject flexStrings `json:"subject"`
	} `json:"metadata"`
}

// SearchAudio runs an advanced search and resolves the preferred file of
// each hit. Items without a usable file, or whose metadata still fails after
// retries, are skipped.
func (c *ArchiveClient) SearchAudio(ctx context.Context, query string, limit int) ([]AudioCandidate, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("title:(%s) AND mediatype:audio AND licenseurl:*creativecommons*", query))
	for _, field := range []string{"identifier", "title", "creator", "date", "licenseurl", "downloads"} {
		params.Add("fl[]", field)
	}
	params.Set("rows", strconv.Itoa(limit))
	params.Set("output", "json")

	var resp archiveSearchResponse
	if err := c.http.getJSON(ctx, "archive search", "/advancedsearch.php", params, &resp); err != nil {
		return nil, err
	}

	var out []AudioCandidate
	for _, doc := range resp.Response.Docs {
		if len(out) >= limit {
			break
		}
		if doc.Identifier == "" {
			continue
		}

		meta, err := retry.Do(ctx, c.invoker, "archive.metadata", func(ctx context.Context) (archiveMetadata, error) {
			var meta archiveMetadata
			err := c.http.getJSON(ctx, "archive metadata", "/metadata/"+url.PathEscape(doc.Identifier), nil, &meta)
			return meta, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Log.Warn("Failed to fetch archive item metadata",
				zap.String("identifier", doc.Identifier),
				zap.Error(err),
			)
			continue
		}

		file, ok := pickArchiveFile(meta.Files)
		if !ok {
			logger.Log.Debug("No playable audio file in archive item", zap.String("identifier", doc.Identifier))
			continue
		}

		size, _ := strconv.ParseInt(file.Size, 10, 64)
		out = append(out, AudioCandidate{
			ID:          doc.Identifier,
			Source:      SourceInternetArchive,
			Title:       string(doc.Title),
			Author:      string(doc.Creator),
			License:     string(doc.LicenseURL),
			URL:         c.http.baseURL + "/details/" + doc.Identifier,
			DownloadURL: c.http.baseURL + "/download/" + doc.Identifier + "/" + url.PathEscape(file.Name),
			Ext:         archiveExt(file),
			Duration:    ParseDuration(file.Length),
			FileSize:    size,
			Tags:        []string(meta.Metadata.Subject),
		})
	}
	return out, nil
}

// Download fetches an item file.
func (c *ArchiveClient) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return c.http.download(ctx, "archive download", rawURL)
}

// pickArchiveFile returns the first file in format preference order.
func pickArchiveFile(files []archiveFile) (archiveFile, bool) {
	for _, format := range archiveFormats {
		for _, f := range files {
			if strings.EqualFold(f.Format, format) {
				return f, true
			}
		}
	}
	return archiveFile{}, false
}

func archiveExt(f archiveFile) string {
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(f.Name)), "."); ext != "" {
		return ext
	}
	if strings.Contains(strings.ToLower(f.Format), "ogg") {
		return "ogg"
	}
	return "mp3"
}
