package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/media-pipelines/media-pipelines-go/internal/config"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
)

func testIngestConfig() config.IngestConfig {
	return config.NewForTest().Ingest
}

const wikimediaFixture = `{
  "query": {
    "pages": {
      "200": {
        "index": 2,
        "title": "File:Forest walk.webm",
        "imageinfo": [{
          "url": "https://upload.wikimedia.org/forest.webm",
          "size": 2048,
          "mime": "video/webm",
          "extmetadata": {
            "Artist": {"value": "Jane"},
            "License": {"value": "cc-by-sa-4.0"},
            "ImageDescription": {"value": "A forest"}
          }
        }],
        "categories": [{"title": "Category:CC-BY-SA-4.0"}]
      },
      "100": {
        "index": 1,
        "title": "File:River.mp4",
        "imageinfo": [{
          "url": "https://upload.wikimedia.org/river.mp4",
          "size": 4096,
          "mime": "video/mp4",
          "extmetadata": {"Artist": {"value": "Sam"}, "License": {"value": "cc0"}}
        }],
        "categories": [{"title": "Category:CC0"}]
      },
      "300": {
        "index": 3,
        "title": "File:Photo.jpg",
        "imageinfo": [{"url": "https://upload.wikimedia.org/photo.jpg", "mime": "image/jpeg"}],
        "categories": [{"title": "Category:CC0"}]
      },
      "400": {
        "index": 4,
        "title": "File:Unlicensed.webm",
        "imageinfo": [{"url": "https://upload.wikimedia.org/u.webm", "mime": "video/webm"}]
      }
    }
  }
}`

func TestWikimediaSearchVideos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "query", q.Get("action"))
		assert.Equal(t, "nature filetype:video", q.Get("gsrsearch"))
		assert.Equal(t, "6", q.Get("gsrnamespace"))
		assert.Equal(t, "5", q.Get("gsrlimit"))
		assert.Equal(t, wikimediaLicenseCategories, q.Get("clcategories"))
		assert.Equal(t, "MediaPipelines/test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(wikimediaFixture))
	}))
	defer srv.Close()

	cfg := testIngestConfig()
	cfg.UserAgent = "MediaPipelines/test"
	client := NewWikimediaClient(cfg, WithBaseURL(srv.URL))

	videos, err := client.SearchVideos(context.Background(), "nature", 5)
	require.NoError(t, err)
	require.Len(t, videos, 2)

	assert.Equal(t, "File:River.mp4", videos[0].Title)
	assert.Equal(t, "Sam", videos[0].Author)
	assert.Equal(t, int64(4096), videos[0].Size)

	assert.Equal(t, "File:Forest walk.webm", videos[1].Title)
	assert.Equal(t, "cc-by-sa-4.0", videos[1].License)
	assert.Equal(t, "A forest", videos[1].Description)
}

func TestWikimediaSearchRespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(wikimediaFixture))
	}))
	defer srv.Close()

	client := NewWikimediaClient(testIngestConfig(), WithBaseURL(srv.URL))
	videos, err := client.SearchVideos(context.Background(), "nature", 1)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "File:River.mp4", videos[0].Title)
}

func TestHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true},
		{name: "server error", status: http.StatusBadGateway, transient: true},
		{name: "not found", status: http.StatusNotFound, transient: false},
		{name: "forbidden", status: http.StatusForbidden, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			client := NewWikimediaClient(testIngestConfig(), WithBaseURL(srv.URL))
			_, err := client.SearchVideos(context.Background(), "nature", 2)
			require.Error(t, err)

			assert.Equal(t, tt.transient, retry.IsTransient(err))

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Contains(t, httpErr.Body, "nope")
		})
	}
}

func TestDownloadSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	cfg := testIngestConfig()
	cfg.MaxDownloadSize = 32
	client := NewWikimediaClient(cfg)
	_, err := client.Download(context.Background(), srv.URL+"/big.webm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	cfg.MaxDownloadSize = 64
	client = NewWikimediaClient(cfg)
	data, err := client.Download(context.Background(), srv.URL+"/ok.webm")
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestArchiveSearchAudio(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/advancedsearch.php", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Contains(t, q.Get("q"), "title:(rain)")
		assert.Contains(t, q.Get("q"), "mediatype:audio")
		assert.Equal(t, []string{"identifier", "title", "creator", "date", "licenseurl", "downloads"}, q["fl[]"])
		assert.Equal(t, "3", q.Get("rows"))
		_, _ = w.Write([]byte(`{"response":{"docs":[
			{"identifier":"rain-01","title":"Rain","creator":["Ann","Bob"],"licenseurl":"http://creativecommons.org/licenses/by/3.0/"},
			{"identifier":"no-audio","title":"Text only","creator":"Cid"},
			{"identifier":"broken","title":"Broken"}
		]}}`))
	})
	mux.HandleFunc("/metadata/rain-01", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files":[
			{"name":"rain.ogg","format":"Ogg Vorbis","size":"900","length":"1:00"},
			{"name":"rain 64.mp3","format":"64Kbps MP3","size":"500","length":"01:00"},
			{"name":"rain.mp3","format":"VBR MP3","size":"1200","length":"00:01:05"}
		],"metadata":{"subject":"rain; weather"}}`))
	})
	mux.HandleFunc("/metadata/no-audio", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"files":[{"name":"readme.txt","format":"Text"}]}`))
	})
	mux.HandleFunc("/metadata/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewArchiveClient(testIngestConfig(), testInvoker(), WithBaseURL(srv.URL))
	assert.Equal(t, SourceInternetArchive, client.Name())

	items, err := client.SearchAudio(context.Background(), "rain", 3)
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "rain-01", item.ID)
	assert.Equal(t, "Ann", item.Author)
	assert.Equal(t, "mp3", item.Ext)
	assert.InDelta(t, 65.0, item.Duration, 1e-9)
	assert.Equal(t, int64(1200), item.FileSize)
	assert.Equal(t, []string{"rain; weather"}, item.Tags)
	assert.Equal(t, srv.URL+"/download/rain-01/rain.mp3", item.DownloadURL)
	assert.Equal(t, srv.URL+"/details/rain-01", item.URL)
}

func TestArchiveSearchAudioRetriesItemMetadata(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		status      int
		wantItems   int
		wantLookups int
	}{
		{name: "recovers after unavailable", failures: 1, status: http.StatusServiceUnavailable, wantItems: 1, wantLookups: 2},
		{name: "recovers after throttling", failures: 2, status: http.StatusTooManyRequests, wantItems: 1, wantLookups: 3},
		{name: "skipped after retries exhausted", failures: 5, status: http.StatusBadGateway, wantItems: 0, wantLookups: 3},
		{name: "not found is not retried", failures: 5, status: http.StatusNotFound, wantItems: 0, wantLookups: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookups := 0
			mux := http.NewServeMux()
			mux.HandleFunc("/advancedsearch.php", func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"response":{"docs":[{"identifier":"item1","title":"Rain"}]}}`))
			})
			mux.HandleFunc("/metadata/item1", func(w http.ResponseWriter, _ *http.Request) {
				lookups++
				if lookups <= tt.failures {
					http.Error(w, "try later", tt.status)
					return
				}
				_, _ = w.Write([]byte(`{"files":[{"name":"rain.mp3","format":"VBR MP3","size":"10","length":"3"}]}`))
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			client := NewArchiveClient(testIngestConfig(), testInvoker(), WithBaseURL(srv.URL))
			items, err := client.SearchAudio(context.Background(), "rain", 1)
			require.NoError(t, err)
			assert.Len(t, items, tt.wantItems)
			assert.Equal(t, tt.wantLookups, lookups)
		})
	}
}

func TestPickArchiveFile(t *testing.T) {
	files := []archiveFile{
		{Name: "a.ogg", Format: "Ogg Vorbis"},
		{Name: "b.mp3", Format: "128Kbps MP3"},
	}
	f, ok := pickArchiveFile(files)
	require.True(t, ok)
	assert.Equal(t, "b.mp3", f.Name)

	f, ok = pickArchiveFile(files[:1])
	require.True(t, ok)
	assert.Equal(t, "ogg", archiveExt(f))

	_, ok = pickArchiveFile([]archiveFile{{Name: "x.flac", Format: "Flac"}})
	assert.False(t, ok)
}

func TestFreesoundSearchAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/text/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "birds", q.Get("query"))
		assert.Equal(t, "2", q.Get("page_size"))
		assert.Contains(t, q.Get("filter"), "duration:[0.5 TO 60]")
		_, _ = w.Write([]byte(`{"results":[
			{"id":42,"name":"Birdsong ","username":"kim","license":"http://creativecommons.org/publicdomain/zero/1.0/",
			 "url":"https://freesound.org/s/42/","duration":12.5,"filesize":3000,"tags":["birds"],
			 "previews":{"preview-hq-mp3":"https://cdn.freesound.org/42-hq.mp3"}},
			{"id":43,"name":"No preview","previews":{}}
		]}`))
	}))
	defer srv.Close()

	cfg := testIngestConfig()
	cfg.FreesoundAPIKey = "secret"
	client := NewFreesoundClient(cfg, WithBaseURL(srv.URL))

	items, err := client.SearchAudio(context.Background(), "birds", 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "42", items[0].ID)
	assert.Equal(t, "Birdsong", items[0].Title)
	assert.Equal(t, SourceFreesound, items[0].Source)
	assert.Equal(t, "https://cdn.freesound.org/42-hq.mp3", items[0].DownloadURL)
	assert.InDelta(t, 12.5, items[0].Duration, 1e-9)
}
