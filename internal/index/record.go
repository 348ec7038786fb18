// Package index records processed media in a queryable catalog.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL keeps records for one year.
const DefaultTTL = 365 * 24 * time.Hour

// Record is one processed media item.
type Record struct {
	ID           string          `json:"id"`
	MediaType    string          `json:"media_type"`
	Campaign     string          `json:"campaign"`
	S3Key        string          `json:"s3_key"`
	ProcessedKey string          `json:"processed_key"`
	IngestedAt   string          `json:"ingested_at"`
	ProcessedAt  string          `json:"processed_at"`
	Metadata     json.RawMessage `json:"metadata"`
	TTL          int64           `json:"ttl"`
}

// Entry is the caller-supplied part of a record.
type Entry struct {
	MediaType    string
	Campaign     string
	S3Key        string
	ProcessedKey string
	IngestedAt   string
	Metadata     any
}

// Filter narrows a scan. Empty fields match everything.
type Filter struct {
	MediaType string
	Campaign  string
	Limit     int
}

func (f Filter) matches(r Record) bool {
	if f.Campaign != "" && r.Campaign != f.Campaign {
		return false
	}
	if f.MediaType != "" && r.MediaType != f.MediaType {
		return false
	}
	return true
}

// Index is an upsert-by-id catalog.
type Index interface {
	// Put inserts or replaces the record with the same ID.
	Put(ctx context.Context, record Record) error

	// Scan returns records matching the filter in no particular order.
	Scan(ctx context.Context, filter Filter) ([]Record, error)
}

// RecordID builds the composite key media_type#campaign#ingested_at with
// underscores removed from ingested_at. Two items of one batch share an ID
// and the later write replaces the earlier one.
func RecordID(mediaType, campaign, ingestedAt string) string {
	return fmt.Sprintf("%s#%s#%s", mediaType, campaign, strings.ReplaceAll(ingestedAt, "_", ""))
}

// NewRecord stamps an entry with its ID, processing time and expiry.
func NewRecord(e Entry, now time.Time, ttl time.Duration) (Record, error) {
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return Record{}, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now = now.UTC()
	return Record{
		ID:           RecordID(e.MediaType, e.Campaign, e.IngestedAt),
		MediaType:    e.MediaType,
		Campaign:     e.Campaign,
		S3Key:        e.S3Key,
		ProcessedKey: e.ProcessedKey,
		IngestedAt:   e.IngestedAt,
		ProcessedAt:  now.Format(time.RFC3339Nano),
		Metadata:     metadata,
		TTL:          now.Add(ttl).Unix(),
	}, nil
}

func marshalMetadata(v any) (json.RawMessage, error) {
	switch m := v.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(m) == 0 {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid(m) {
			return nil, fmt.Errorf("metadata is not valid JSON")
		}
		return m, nil
	default:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		return data, nil
	}
}

// decodeMetadata tolerates corrupt stored metadata by returning an empty object.
func decodeMetadata(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(s)
}
