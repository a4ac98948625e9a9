package worker

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/deliverability-engine/internal/domain"
)

type fakeRetentionStore struct {
	events  []domain.RawEvent
	deleted []string
	listErr error
}

func (f *fakeRetentionStore) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.RawEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func (f *fakeRetentionStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	f.deleted = append(f.deleted, ids...)
	return int64(len(ids)), nil
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &s3.PutObjectOutput{}, nil
}

func oldEvent(id string) domain.RawEvent {
	return domain.RawEvent{
		ID:       id,
		TenantID: "t-1",
		Type:     domain.EventBounce,
		Payload:  json.RawMessage(`{"event_type":"bounce"}`),
	}
}

func TestRetentionArchivesThenDeletes(t *testing.T) {
	store := &fakeRetentionStore{events: []domain.RawEvent{oldEvent("ev-1"), oldEvent("ev-2")}}
	putter := &fakePutter{}

	w := NewRetentionArchiver(store, putter, "raw-archive", 90*24*time.Hour, 0)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(putter.inputs) != 1 {
		t.Fatalf("uploads = %d, want 1", len(putter.inputs))
	}
	input := putter.inputs[0]
	if *input.Bucket != "raw-archive" {
		t.Errorf("bucket = %s, want raw-archive", *input.Bucket)
	}
	if !strings.HasPrefix(*input.Key, "raw-events/") || !strings.HasSuffix(*input.Key, "ev-1.ndjson.gz") {
		t.Errorf("key = %s, want raw-events/.../ev-1.ndjson.gz", *input.Key)
	}

	gz, err := gzip.NewReader(input.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	scanner := bufio.NewScanner(gz)
	lines := 0
	for scanner.Scan() {
		var ev domain.RawEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d not json: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("archive lines = %d, want 2", lines)
	}

	if len(store.deleted) != 2 {
		t.Errorf("deleted = %v, want both archived events removed", store.deleted)
	}
}

func TestRetentionKeepsRowsOnUploadFailure(t *testing.T) {
	store := &fakeRetentionStore{events: []domain.RawEvent{oldEvent("ev-1")}}
	putter := &fakePutter{err: errors.New("s3 unavailable")}

	w := NewRetentionArchiver(store, putter, "raw-archive", 90*24*time.Hour, 0)
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected upload failure to surface")
	}
	if len(store.deleted) != 0 {
		t.Errorf("deleted = %v, rows must survive a failed upload", store.deleted)
	}
}

func TestRetentionIdleWithoutBucket(t *testing.T) {
	store := &fakeRetentionStore{listErr: errors.New("should not be called")}
	w := NewRetentionArchiver(store, &fakePutter{}, "", 90*24*time.Hour, 0)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run without bucket must be a no-op, got %v", err)
	}
}

func TestRetentionNothingPastHorizon(t *testing.T) {
	store := &fakeRetentionStore{}
	putter := &fakePutter{}
	w := NewRetentionArchiver(store, putter, "raw-archive", 90*24*time.Hour, 0)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(putter.inputs) != 0 {
		t.Error("no upload expected for an empty batch")
	}
}
