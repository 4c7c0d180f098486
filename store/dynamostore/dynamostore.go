// Package dynamostore implements the table store over DynamoDB. Table names
// map to DynamoDB tables prefixed with the environment's database name.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"loftdata/config"
	"loftdata/store"
)

type Store struct {
	client *dynamodb.Client
	prefix string

	// cursors remembers the ExclusiveStartKey that continues each table's
	// sequential scan, keyed by the offset the next page starts at. The
	// cloner fetches pages strictly in order, so one cursor per table is
	// enough to avoid rescanning from the beginning.
	cursors map[string]scanCursor
}

type scanCursor struct {
	offset int
	key    map[string]types.AttributeValue
}

func Open(env config.Environment) (*Store, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(env.Host),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsConfig)
	return &Store{
		client:  client,
		prefix:  env.Database,
		cursors: make(map[string]scanCursor),
	}, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) tableName(table string) string {
	if s.prefix == "" {
		return table
	}
	return s.prefix + "-" + table
}

func (s *Store) Exists(ctx context.Context, table string) (bool, error) {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName(table)),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	return true, nil
}

func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName(table)),
		Limit:     aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sample table %s: %w", table, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}

	var columns []string
	for col := range out.Items[0] {
		columns = append(columns, col)
	}
	return columns, nil
}

func (s *Store) FetchPage(ctx context.Context, table string, offset, limit int) ([]store.Row, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(s.tableName(table)),
	}

	skip := offset
	if cursor, ok := s.cursors[table]; ok && cursor.offset == offset {
		input.ExclusiveStartKey = cursor.key
		skip = 0
	}

	var rows []store.Row
	var lastKey map[string]types.AttributeValue

	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() && len(rows) < limit {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}

		for _, item := range page.Items {
			if skip > 0 {
				skip--
				continue
			}
			if len(rows) >= limit {
				break
			}
			rows = append(rows, fromAttributes(item))
		}
		lastKey = page.LastEvaluatedKey
	}

	// Remember where the next sequential page starts. Pages are only
	// cursor-resumable when they end exactly on a scan boundary; otherwise
	// the next fetch falls back to skipping from the start.
	if len(rows) == limit && lastKey != nil && skip == 0 {
		s.cursors[table] = scanCursor{offset: offset + limit, key: lastKey}
	} else {
		delete(s.cursors, table)
	}

	return rows, nil
}

// UpsertBatch writes rows via BatchWriteItem. DynamoDB puts are upserts by
// nature; the conflict key is the table's own key schema.
func (s *Store) UpsertBatch(ctx context.Context, table string, rows []store.Row, conflictKey string) (int, error) {
	return s.writeBatches(ctx, table, rows)
}

func (s *Store) InsertBatch(ctx context.Context, table string, rows []store.Row) (int, error) {
	return s.writeBatches(ctx, table, rows)
}

// DynamoDB caps BatchWriteItem at 25 items.
const dynamoBatchLimit = 25

func (s *Store) writeBatches(ctx context.Context, table string, rows []store.Row) (int, error) {
	written := 0
	for start := 0; start < len(rows); start += dynamoBatchLimit {
		end := start + dynamoBatchLimit
		if end > len(rows) {
			end = len(rows)
		}

		batch := make([]types.WriteRequest, 0, end-start)
		for _, row := range rows[start:end] {
			batch = append(batch, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: toAttributes(row)},
			})
		}

		if err := s.writeBatch(ctx, s.tableName(table), batch); err != nil {
			return written, err
		}
		written += end - start
	}
	return written, nil
}

func (s *Store) writeBatch(ctx context.Context, table string, batch []types.WriteRequest) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{table: batch},
	}

	maxRetries := 3
	backoff := time.Second

	for retry := 0; retry < maxRetries; retry++ {
		result, err := s.client.BatchWriteItem(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to write batch: %w", err)
		}

		unprocessed := result.UnprocessedItems[table]
		if len(unprocessed) == 0 {
			return nil
		}

		input.RequestItems[table] = unprocessed
		time.Sleep(backoff)
		backoff *= 2
	}

	return fmt.Errorf("failed to write batch after %d retries", maxRetries)
}

func (s *Store) DeleteAll(ctx context.Context, table string) (int, error) {
	name := s.tableName(table)

	desc, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to describe table %s: %w", table, err)
	}

	var keyAttrs []string
	for _, key := range desc.Table.KeySchema {
		keyAttrs = append(keyAttrs, aws.ToString(key.AttributeName))
	}

	deleted := 0
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(name),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("failed to scan %s for deletion: %w", table, err)
		}

		var batch []types.WriteRequest
		for _, item := range page.Items {
			key := make(map[string]types.AttributeValue, len(keyAttrs))
			for _, attr := range keyAttrs {
				key[attr] = item[attr]
			}
			batch = append(batch, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})

			if len(batch) == dynamoBatchLimit {
				if err := s.writeBatch(ctx, name, batch); err != nil {
					return deleted, err
				}
				deleted += len(batch)
				batch = nil
			}
		}
		if len(batch) > 0 {
			if err := s.writeBatch(ctx, name, batch); err != nil {
				return deleted, err
			}
			deleted += len(batch)
		}
	}

	delete(s.cursors, table)
	return deleted, nil
}

func toAttributes(row store.Row) map[string]types.AttributeValue {
	item := make(map[string]types.AttributeValue, len(row))
	for col, val := range row {
		item[col] = toAttribute(val)
	}
	return item
}

func toAttribute(val any) types.AttributeValue {
	switch v := val.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}
	case string:
		return &types.AttributeValueMemberS{Value: v}
	case bool:
		return &types.AttributeValueMemberBOOL{Value: v}
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(v)}
	case int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}
	default:
		return &types.AttributeValueMemberS{Value: fmt.Sprintf("%v", v)}
	}
}

func fromAttributes(item map[string]types.AttributeValue) store.Row {
	row := make(store.Row, len(item))
	for col, attr := range item {
		row[col] = fromAttribute(attr)
	}
	return row
}

func fromAttribute(attr types.AttributeValue) any {
	switch v := attr.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberBOOL:
		return v.Value
	case *types.AttributeValueMemberN:
		if n, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return n
		}
		return v.Value
	case *types.AttributeValueMemberNULL:
		return nil
	default:
		return fmt.Sprintf("%v", attr)
	}
}
