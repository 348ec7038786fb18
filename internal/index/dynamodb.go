package index

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// DefaultScanLimit bounds the number of items read by one scan.
const DefaultScanLimit = 100

// DynamoDBAPI is the subset of the DynamoDB client the index needs.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoItem is the table layout. Metadata is stored as a JSON string so
// arbitrary payloads survive without type mapping.
type dynamoItem struct {
	ID           string `dynamodbav:"id"`
	MediaType    string `dynamodbav:"media_type"`
	Campaign     string `dynamodbav:"campaign"`
	S3Key        string `dynamodbav:"s3_key"`
	ProcessedKey string `dynamodbav:"processed_key"`
	IngestedAt   string `dynamodbav:"ingested_at"`
	ProcessedAt  string `dynamodbav:"processed_at"`
	Metadata     string `dynamodbav:"metadata"`
	TTL          int64  `dynamodbav:"ttl"`
}

// DynamoIndex stores records in a DynamoDB table keyed by id.
//
// Scan reads at most scanLimit items and filters them client side, so
// matching records beyond the first page are not returned.
type DynamoIndex struct {
	client    DynamoDBAPI
	table     string
	scanLimit int
	invoker   *retry.Invoker
}

// NewDynamoIndex creates a DynamoDB-backed index.
func NewDynamoIndex(client DynamoDBAPI, table string, scanLimit int, invoker *retry.Invoker) *DynamoIndex {
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	return &DynamoIndex{
		client:    client,
		table:     table,
		scanLimit: scanLimit,
		invoker:   invoker,
	}
}

func (d *DynamoIndex) Put(ctx context.Context, record Record) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		ID:           record.ID,
		MediaType:    record.MediaType,
		Campaign:     record.Campaign,
		S3Key:        record.S3Key,
		ProcessedKey: record.ProcessedKey,
		IngestedAt:   record.IngestedAt,
		ProcessedAt:  record.ProcessedAt,
		Metadata:     string(decodeMetadata(string(record.Metadata))),
		TTL:          record.TTL,
	})
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", record.ID, err)
	}

	logger.Log.Info("Indexing processed media", zap.String("id", record.ID))

	err = d.invoker.Run(ctx, "dynamodb.PutItem", func(ctx context.Context) error {
		_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(d.table),
			Item:      item,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("put record %s: %w", record.ID, err)
	}
	return nil
}

func (d *DynamoIndex) Scan(ctx context.Context, filter Filter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 || limit > d.scanLimit {
		limit = d.scanLimit
	}

	out, err := retry.Do(ctx, d.invoker, "dynamodb.Scan", func(ctx context.Context) (*dynamodb.ScanOutput, error) {
		return d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName: aws.String(d.table),
			Limit:     aws.Int32(int32(limit)),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", d.table, err)
	}

	var items []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal scan items: %w", err)
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		record := Record{
			ID:           item.ID,
			MediaType:    item.MediaType,
			Campaign:     item.Campaign,
			S3Key:        item.S3Key,
			ProcessedKey: item.ProcessedKey,
			IngestedAt:   item.IngestedAt,
			ProcessedAt:  item.ProcessedAt,
			Metadata:     decodeMetadata(item.Metadata),
			TTL:          item.TTL,
		}
		if filter.matches(record) {
			records = append(records, record)
		}
	}
	return records, nil
}

// Health checks that the table exists.
func (d *DynamoIndex) Health(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", d.table, err)
	}
	return nil
}
