package index

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/media-pipelines/media-pipelines-go/internal/db"
	"github.com/media-pipelines/media-pipelines-go/internal/retry"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresIndex stores records in the media_records table. Campaign and
// media type filters use the (campaign, media_type) index; expired rows are
// excluded at read time.
type PostgresIndex struct {
	db        DBTX
	scanLimit int
	invoker   *retry.Invoker
	now       func() time.Time
}

// NewPostgresIndex creates a PostgreSQL-backed index.
func NewPostgresIndex(conn DBTX, scanLimit int, invoker *retry.Invoker) *PostgresIndex {
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	return &PostgresIndex{
		db:        conn,
		scanLimit: scanLimit,
		invoker:   invoker,
		now:       time.Now,
	}
}

func (p *PostgresIndex) Put(ctx context.Context, record Record) error {
	processedAt, err := time.Parse(time.RFC3339Nano, record.ProcessedAt)
	if err != nil {
		return fmt.Errorf("parse processed_at %q: %w", record.ProcessedAt, err)
	}

	query := `
		INSERT INTO media_records (id, media_type, campaign, s3_key, processed_key, ingested_at, processed_at, metadata, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET media_type = EXCLUDED.media_type,
		    campaign = EXCLUDED.campaign,
		    s3_key = EXCLUDED.s3_key,
		    processed_key = EXCLUDED.processed_key,
		    ingested_at = EXCLUDED.ingested_at,
		    processed_at = EXCLUDED.processed_at,
		    metadata = EXCLUDED.metadata,
		    expires_at = EXCLUDED.expires_at
	`

	err = p.invoker.Run(ctx, "postgres.UpsertRecord", func(ctx context.Context) error {
		_, err := p.db.Exec(ctx, query,
			record.ID,
			record.MediaType,
			record.Campaign,
			record.S3Key,
			record.ProcessedKey,
			record.IngestedAt,
			processedAt,
			[]byte(decodeMetadata(string(record.Metadata))),
			time.Unix(record.TTL, 0),
		)
		return db.Classify("postgres.UpsertRecord", err)
	})
	if err != nil {
		return db.WrapError(err, "upsert media record")
	}
	return nil
}

func (p *PostgresIndex) Scan(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 || limit > p.scanLimit {
		limit = p.scanLimit
	}

	query := `
		SELECT id, media_type, campaign, s3_key, processed_key, ingested_at, processed_at, metadata, expires_at
		FROM media_records
		WHERE ($1 = '' OR media_type = $1)
		  AND ($2 = '' OR campaign = $2)
		  AND expires_at > $3
		ORDER BY processed_at DESC
		LIMIT $4
	`

	records, err := retry.Do(ctx, p.invoker, "postgres.ScanRecords", func(ctx context.Context) ([]Record, error) {
		rows, err := p.db.Query(ctx, query, filter.MediaType, filter.Campaign, p.now(), limit)
		if err != nil {
			return nil, db.Classify("postgres.ScanRecords", err)
		}
		defer rows.Close()

		var records []Record
		for rows.Next() {
			var (
				r           Record
				processedAt time.Time
				expiresAt   time.Time
				metadata    []byte
			)
			if err := rows.Scan(&r.ID, &r.MediaType, &r.Campaign, &r.S3Key, &r.ProcessedKey,
				&r.IngestedAt, &processedAt, &metadata, &expiresAt); err != nil {
				return nil, err
			}
			r.ProcessedAt = processedAt.UTC().Format(time.RFC3339Nano)
			r.Metadata = decodeMetadata(string(metadata))
			r.TTL = expiresAt.Unix()
			records = append(records, r)
		}
		return records, db.Classify("postgres.ScanRecords", rows.Err())
	})
	if err != nil {
		return nil, db.WrapError(err, "scan media records")
	}
	return records, nil
}
