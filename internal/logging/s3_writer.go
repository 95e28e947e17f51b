package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Writer archives batches of AuditRecords to S3 as JSON Lines, off by
// default and enabled only when AUDIT_SINK_S3_BUCKET is configured.
type S3Writer struct {
	client   *s3.Client
	bucket   string
	prefix   string
	instance string
	logger   *Logger
}

// NewS3Writer builds a client via the default AWS credential chain.
func NewS3Writer(ctx context.Context, bucket, region, prefix, instance string) (*S3Writer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &S3Writer{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		instance: instance,
		logger:   New("s3-writer"),
	}, nil
}

// WriteBatch uploads records as a JSONL object and returns the S3 key,
// keyed by date and a nanosecond-resolution timestamp so concurrent
// flushers never collide.
func (w *S3Writer) WriteBatch(ctx context.Context, records []*AuditRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	now := time.Now()
	key := fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%d.jsonl",
		w.prefix,
		now.Year(),
		now.Month(),
		now.Day(),
		w.instance,
		now.Format("20060102-150405"),
		now.Nanosecond(),
	)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			w.logger.Error("failed to encode audit record", "error", err)
			continue
		}
	}

	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("wrote audit batch to S3", "key", key, "count", len(records), "bytes", buf.Len())
	return key, nil
}
