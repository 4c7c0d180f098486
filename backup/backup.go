// Package backup snapshots target tables before a clone mutates them.
// Snapshots are JSON objects with row counts and MD5 checksums, written to a
// local directory or an S3 bucket.
package backup

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"loftdata/store"
)

// Store persists backup objects under a key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Object is one table's snapshot.
type Object struct {
	Table     string      `json:"table"`
	RowCount  int         `json:"row_count"`
	Checksum  string      `json:"checksum"`
	CreatedAt time.Time   `json:"created_at"`
	Rows      []store.Row `json:"rows"`
}

// LocalStore writes backups under a directory.
type LocalStore struct {
	Dir string
}

func (l *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	path := filepath.Join(l.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	return nil
}

// S3Store writes backups to an S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, region, bucket string) (*S3Store, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(awsConfig), bucket: bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload backup %s: %w", key, err)
	}
	return nil
}

// pageSize for snapshot reads.
const pageSize = 1000

// Create snapshots the named tables from the target and returns the backup
// id. Tables that do not exist are skipped; they have nothing to restore.
func Create(ctx context.Context, target store.TableStore, tables []string, dest Store, operationID string) (string, error) {
	backupID := "backup-" + operationID

	for _, table := range tables {
		exists, err := target.Exists(ctx, table)
		if err != nil {
			return backupID, fmt.Errorf("failed to probe %s for backup: %w", table, err)
		}
		if !exists {
			continue
		}

		var rows []store.Row
		offset := 0
		for {
			page, err := target.FetchPage(ctx, table, offset, pageSize)
			if err != nil {
				return backupID, fmt.Errorf("failed to read %s for backup: %w", table, err)
			}
			rows = append(rows, page...)
			if len(page) < pageSize {
				break
			}
			offset += len(page)
		}

		obj := Object{
			Table:     table,
			RowCount:  len(rows),
			CreatedAt: time.Now().UTC(),
			Rows:      rows,
		}

		rowData, err := json.Marshal(rows)
		if err != nil {
			return backupID, fmt.Errorf("failed to marshal backup rows for %s: %w", table, err)
		}
		sum := md5.Sum(rowData)
		obj.Checksum = hex.EncodeToString(sum[:])

		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return backupID, fmt.Errorf("failed to marshal backup for %s: %w", table, err)
		}

		key := fmt.Sprintf("%s/%s.json", backupID, table)
		if err := dest.Put(ctx, key, data); err != nil {
			return backupID, err
		}
	}

	return backupID, nil
}
