// Package ingest fetches openly licensed media from public APIs and stores
// the raw bytes in the blob store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
)

// HTTPError is a non-2xx response from a media API.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// ClientOption customises a media API client.
type ClientOption func(*httpClient)

// WithBaseURL points a client at another host, typically an httptest server.
func WithBaseURL(base string) ClientOption {
	return func(c *httpClient) {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithHTTPClient replaces the client used for API calls and downloads.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *httpClient) {
		c.api = hc
		c.downloads = hc
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	headers   http.Header
	maxSize   int64
	api       *http.Client
	downloads *http.Client
}

func newHTTPClient(baseURL string, cfg config.IngestConfig, opts []ClientOption) *httpClient {
	apiTimeout := cfg.HTTPTimeout
	if apiTimeout <= 0 {
		apiTimeout = 30 * time.Second
	}
	downloadTimeout := cfg.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = 120 * time.Second
	}

	c := &httpClient{
		baseURL:   baseURL,
		userAgent: cfg.UserAgent,
		headers:   http.Header{},
		maxSize:   cfg.MaxDownloadSize,
		api:       &http.Client{Timeout: apiTimeout},
		downloads: &http.Client{Timeout: downloadTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// getJSON fetches path (relative to the base URL) and decodes the body.
func (c *httpClient) getJSON(ctx context.Context, op, path string, query url.Values, dst any) error {
	rawURL := c.baseURL + path
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", op, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(op, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// download reads a whole file, refusing bodies over the configured limit.
func (c *httpClient) download(ctx context.Context, op, rawURL string) ([]byte, error) {
	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.downloads.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: send request: %w", op, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}

	var body io.Reader = resp.Body
	if c.maxSize > 0 {
		if resp.ContentLength > c.maxSize {
			return nil, fmt.Errorf("%s: file too large: %d bytes (max %d)", op, resp.ContentLength, c.maxSize)
		}
		body = io.LimitReader(resp.Body, c.maxSize+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &retry.TransientError{Op: op, Err: err}
	}
	if c.maxSize > 0 && int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("%s: file too large: exceeds %d bytes", op, c.maxSize)
	}
	return data, nil
}

// checkStatus maps 429 and 5xx to retry.TransientError.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	httpErr := &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &retry.TransientError{Op: op, StatusCode: resp.StatusCode, Err: httpErr}
	}
	return httpErr
}

// contentType prefers the declared type unless it is missing or generic,
// in which case the bytes are sniffed.
func contentType(declared string, data []byte) string {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}
