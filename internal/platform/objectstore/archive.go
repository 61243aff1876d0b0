package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/unicorn-labs/unicorn-go/internal/platform/queue"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// DeadLetterArchive writes dead-lettered messages to <bucket>/<queue>/<message_id>.json.
type DeadLetterArchive struct {
	client objectPutter
	bucket string
	now    func() time.Time
}

func NewDeadLetterArchive(client *minio.Client, bucket string) (*DeadLetterArchive, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	return newDeadLetterArchive(client, bucket)
}

func newDeadLetterArchive(client objectPutter, bucket string) (*DeadLetterArchive, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &DeadLetterArchive{client: client, bucket: bucket, now: time.Now}, nil
}

type archivedMessage struct {
	MessageID    string            `json:"message_id"`
	Queue        string            `json:"queue"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Body         string            `json:"body"`
	ReceiveCount int               `json:"receive_count"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
	ArchivedAt   time.Time         `json:"archived_at"`
	Reason       string            `json:"reason"`
}

func ArchiveKey(queueName, messageID string) string {
	return path.Join(queueName, messageID+".json")
}

func (a *DeadLetterArchive) Archive(ctx context.Context, msg queue.Message, reason string) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("dead letter archive not initialized")
	}
	payload, err := json.Marshal(archivedMessage{
		MessageID:    msg.ID,
		Queue:        msg.Queue,
		Attributes:   msg.Attributes,
		Body:         string(msg.Body),
		ReceiveCount: msg.ReceiveCount,
		EnqueuedAt:   msg.EnqueuedAt.UTC(),
		ArchivedAt:   a.now().UTC(),
		Reason:       reason,
	})
	if err != nil {
		return fmt.Errorf("encode archived message: %w", err)
	}
	key := ArchiveKey(msg.Queue, msg.ID)
	if _, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
