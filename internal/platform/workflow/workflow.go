// Package workflow delivers resume signals to the external workflow engine
// that paused waiting for a contract approval.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/platform/queue"
)

type Outcome struct {
	Status     domain.Status `json:"status"`
	PropertyID string        `json:"property_id"`
}

type ResumeSignal struct {
	Token   string  `json:"token"`
	Outcome Outcome `json:"outcome"`
}

// Engine accepts resume signals. Implementations may be called more than once
// for the same token; the engine rejects or ignores stale tokens.
type Engine interface {
	SendTaskSuccess(ctx context.Context, signal ResumeSignal) error
}

// ErrTokenRejected is returned when the engine no longer recognises a token.
var ErrTokenRejected = errors.New("workflow token rejected")

type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

func NewHTTPEngine(baseURL string, timeout time.Duration) (*HTTPEngine, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("workflow url is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPEngine{baseURL: baseURL, client: &http.Client{Timeout: timeout}}, nil
}

func (e *HTTPEngine) SendTaskSuccess(ctx context.Context, signal ResumeSignal) error {
	if e == nil || e.client == nil {
		return fmt.Errorf("workflow engine not initialized")
	}
	body, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("encode resume signal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/task-success", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send task success: %w", err)
	}
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d: %s", ErrTokenRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	default:
		return fmt.Errorf("send task success: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
}

type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, attributes map[string]string, body []byte) (string, error)
}

// QueueEngine hands resume signals to the engine through the workflow-resume
// queue.
type QueueEngine struct {
	queue Enqueuer
}

func NewQueueEngine(q Enqueuer) (*QueueEngine, error) {
	if q == nil {
		return nil, errors.New("queue is required")
	}
	return &QueueEngine{queue: q}, nil
}

func (e *QueueEngine) SendTaskSuccess(ctx context.Context, signal ResumeSignal) error {
	body, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("encode resume signal: %w", err)
	}
	attrs := map[string]string{
		queue.AttributeOperation: "task-success",
		"property_id":            signal.Outcome.PropertyID,
	}
	if _, err := e.queue.Enqueue(ctx, queue.QueueWorkflowResume, attrs, body); err != nil {
		return fmt.Errorf("enqueue resume signal: %w", err)
	}
	return nil
}
