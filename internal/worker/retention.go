package worker

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

// RetentionEventStore is the raw-event surface the archiver drains.
type RetentionEventStore interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.RawEvent, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ObjectPutter is the S3 upload surface. *s3.Client satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// RetentionArchiver moves raw events past the retention horizon into
// gzipped NDJSON objects in S3, then deletes the archived rows. Rows are
// only deleted after the object upload succeeds.
type RetentionArchiver struct {
	events RetentionEventStore
	s3     ObjectPutter
	bucket string
	keep   time.Duration
	batch  int
}

func NewRetentionArchiver(events RetentionEventStore, putter ObjectPutter, bucket string, keep time.Duration, batch int) *RetentionArchiver {
	if batch <= 0 {
		batch = 1000
	}
	return &RetentionArchiver{events: events, s3: putter, bucket: bucket, keep: keep, batch: batch}
}

// Run archives one batch per invocation. Draining a large backlog takes
// several scheduler ticks, which also spreads the S3 and delete load.
func (w *RetentionArchiver) Run(ctx context.Context) error {
	if w.bucket == "" {
		logger.Debug("retention archiver idle, no bucket configured")
		return nil
	}

	cutoff := time.Now().Add(-w.keep)
	events, err := w.events.ListOlderThan(ctx, cutoff, w.batch)
	if err != nil {
		return fmt.Errorf("list events past retention: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	body, err := encodeArchive(events)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}

	key := fmt.Sprintf("raw-events/%s/%s.ndjson.gz",
		time.Now().UTC().Format("2006/01/02"),
		events[0].ID)
	_, err = w.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(w.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("upload archive %s: %w", key, err)
	}

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	deleted, err := w.events.DeleteByIDs(ctx, ids)
	if err != nil {
		// The object exists but rows remain; the next pass re-archives
		// them under a new key, which is harmless duplication.
		return fmt.Errorf("delete archived events: %w", err)
	}

	logger.Info("retention pass complete", "archived", len(events), "deleted", deleted, "key", key)
	return nil
}

func encodeArchive(events []domain.RawEvent) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
