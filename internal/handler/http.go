package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/index"
	"github.com/media-pipelines/media-pipelines-go/internal/storage"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

const (
	maxRequestBody     = 10 << 20
	defaultRecordLimit = 50
	maxRecordLimit     = 1000
)

// Invoker runs a named handler.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload []byte) (any, error)
}

// PipelineHandler serves POST /v1/handlers/:name.
type PipelineHandler struct {
	invoker Invoker
}

// NewPipelineHandler creates a PipelineHandler.
func NewPipelineHandler(invoker Invoker) *PipelineHandler {
	return &PipelineHandler{invoker: invoker}
}

// Invoke runs the handler named in the path with the request body. A
// handler-level failure, including a malformed body, is still 200 with the
// error in the body, matching what the workflow engine receives.
func (h *PipelineHandler) Invoke(c *gin.Context) {
	name := c.Param("name")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(body) > maxRequestBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	resp, err := h.invoker.Invoke(c.Request.Context(), name, body)
	if err != nil {
		if errors.Is(err, ErrUnknownHandler) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Log.Error("Handler invocation failed", zap.String("handler", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RecordsHandler serves GET /v1/records.
type RecordsHandler struct {
	index index.Index
}

// NewRecordsHandler creates a RecordsHandler.
func NewRecordsHandler(idx index.Index) *RecordsHandler {
	return &RecordsHandler{index: idx}
}

// List scans the index with the campaign, media_type and limit query
// parameters.
func (h *RecordsHandler) List(c *gin.Context) {
	mediaType := c.Query("media_type")
	if mediaType != "" && mediaType != storage.MediaTypeAudio && mediaType != storage.MediaTypeVideo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "media_type must be audio or video"})
		return
	}

	limit := defaultRecordLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecordLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	records, err := h.index.Scan(c.Request.Context(), index.Filter{
		MediaType: mediaType,
		Campaign:  c.Query("campaign"),
		Limit:     limit,
	})
	if err != nil {
		logger.Log.Error("Failed to scan index", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to scan index"})
		return
	}
	if records == nil {
		records = []index.Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// CatalogHandler serves the campaign browsing endpoints.
type CatalogHandler struct {
	catalog *storage.Catalog
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(catalog *storage.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Campaigns lists campaigns that have raw media.
func (h *CatalogHandler) Campaigns(c *gin.Context) {
	campaigns, err := h.catalog.Campaigns(c.Request.Context())
	if err != nil {
		logger.Log.Error("Failed to list campaigns", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list campaigns"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

// Counts returns raw and processed asset counts for a campaign.
func (h *CatalogHandler) Counts(c *gin.Context) {
	campaign := c.Param("campaign")
	counts, err := h.catalog.Counts(c.Request.Context(), campaign)
	if err != nil {
		logger.Log.Error("Failed to count assets", zap.String("campaign", campaign), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count assets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": campaign, "counts": counts})
}

// Latest returns the most recent processed result of a campaign.
func (h *CatalogHandler) Latest(c *gin.Context) {
	campaign := c.Param("campaign")
	mediaType := c.DefaultQuery("media_type", storage.MediaTypeVideo)
	if mediaType != storage.MediaTypeAudio && mediaType != storage.MediaTypeVideo {
		c.JSON(http.StatusBadRequest, gin.H{"error": "media_type must be audio or video"})
		return
	}

	key, data, ok, err := h.catalog.LatestProcessed(c.Request.Context(), campaign, mediaType)
	if err != nil {
		logger.Log.Error("Failed to read latest result", zap.String("campaign", campaign), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read latest result"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no processed results for campaign"})
		return
	}

	result := json.RawMessage(data)
	if !json.Valid(data) {
		result = json.RawMessage(`{}`)
	}
	c.JSON(http.StatusOK, gin.H{
		"campaign":   campaign,
		"media_type": mediaType,
		"key":        key,
		"result":     result,
	})
}
