package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/unicorn-labs/unicorn-go/internal/platform/queue"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Endpoint:          "localhost:9000",
		AccessKey:         "a",
		SecretKey:         "b",
		Region:            "us-east-1",
		BucketDeadLetters: "dead-letters",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := valid
	invalid.Endpoint = "http://localhost:9000"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}

	invalid = valid
	invalid.BucketDeadLetters = " "
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for empty bucket")
	}
}

type fakePutter struct {
	bucket string
	key    string
	body   []byte
	opts   minio.PutObjectOptions
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, body io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	f.bucket, f.key, f.opts = bucket, key, opts
	b, _ := io.ReadAll(body)
	f.body = b
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: int64(len(b))}, nil
}

func TestArchiveWritesMessageJSON(t *testing.T) {
	putter := &fakePutter{}
	archive, err := newDeadLetterArchive(putter, "dead-letters")
	if err != nil {
		t.Fatalf("newDeadLetterArchive: %v", err)
	}
	archive.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	msg := queue.Message{
		ID:           "m-1",
		Queue:        "contract-requests",
		Attributes:   map[string]string{"operation": "approve"},
		Body:         []byte(`{"property_id":"usa/anytown/main st/12"}`),
		ReceiveCount: 5,
	}
	if err := archive.Archive(context.Background(), msg, "max receives exceeded"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if putter.bucket != "dead-letters" || putter.key != "contract-requests/m-1.json" {
		t.Fatalf("unexpected location %s/%s", putter.bucket, putter.key)
	}
	if putter.opts.ContentType != "application/json" {
		t.Fatalf("unexpected content type %q", putter.opts.ContentType)
	}
	var got archivedMessage
	if err := json.Unmarshal(putter.body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Reason != "max receives exceeded" || got.Body != string(msg.Body) || got.Attributes["operation"] != "approve" {
		t.Fatalf("unexpected archived message: %+v", got)
	}
}

func TestArchivePropagatesPutError(t *testing.T) {
	archive, _ := newDeadLetterArchive(&fakePutter{err: errors.New("unreachable")}, "dead-letters")
	if err := archive.Archive(context.Background(), queue.Message{ID: "m", Queue: "q"}, "r"); err == nil {
		t.Fatalf("expected error")
	}
}
