// Package queue implements an at-least-once message queue on the shared
// Postgres store. Receivers lease messages for a visibility timeout; a message
// that is neither acknowledged nor released becomes visible again when the
// lease expires, so every handler must tolerate duplicate delivery.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	QueueContractRequests      = "contract-requests"
	QueueContractStatusChanged = "contract-status-changed"
	QueueWorkflowResume        = "workflow-resume"
)

// AttributeOperation carries the request discriminator outside the body.
const AttributeOperation = "operation"

type Message struct {
	ID             string
	Queue          string
	Attributes     map[string]string
	Body           []byte
	ReceiveCount   int
	EnqueuedAt     time.Time
	DeadLetteredAt *time.Time
	LastError      string
}

func (m Message) Attribute(key string) (string, bool) {
	v, ok := m.Attributes[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	enqueueQuery = `INSERT INTO messages (message_id, queue, attributes, body)
	VALUES ($1,$2,$3,$4)`

	receiveQuery = `UPDATE messages SET
		receive_count = receive_count + 1,
		visible_at = now() + make_interval(secs => $3)
	WHERE message_id IN (
		SELECT message_id FROM messages
		WHERE queue = $1 AND dead_lettered_at IS NULL AND visible_at <= now()
		ORDER BY visible_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	RETURNING message_id, queue, attributes, body, receive_count, enqueued_at, dead_lettered_at, last_error`

	ackQuery = `DELETE FROM messages WHERE message_id = $1`

	releaseQuery = `UPDATE messages SET
		visible_at = now() + make_interval(secs => $2),
		last_error = $3
	WHERE message_id = $1 AND dead_lettered_at IS NULL`

	deadLetterQuery = `UPDATE messages SET dead_lettered_at = now(), last_error = $2
	WHERE message_id = $1 AND dead_lettered_at IS NULL`

	listDeadLettersQuery = `SELECT message_id, queue, attributes, body, receive_count, enqueued_at, dead_lettered_at, last_error
	FROM messages
	WHERE queue = $1 AND dead_lettered_at IS NOT NULL
	ORDER BY dead_lettered_at DESC
	LIMIT $2`

	redriveQuery = `UPDATE messages SET
		dead_lettered_at = NULL,
		receive_count = 0,
		visible_at = now(),
		last_error = NULL
	WHERE queue = $1 AND dead_lettered_at IS NOT NULL AND ($2 = '' OR message_id::text = $2)`

	purgeDeadLettersQuery = `DELETE FROM messages WHERE dead_lettered_at IS NOT NULL AND dead_lettered_at < $1`
)

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// Enqueue appends a message and returns its id.
func (s *Store) Enqueue(ctx context.Context, queue string, attributes map[string]string, body []byte) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("queue store not initialized")
	}
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return "", errors.New("queue is required")
	}
	if len(body) == 0 {
		return "", errors.New("message body is required")
	}
	if attributes == nil {
		attributes = map[string]string{}
	}
	attrsJSON, err := json.Marshal(attributes)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, enqueueQuery, id, queue, attrsJSON, string(body)); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// Receive leases up to max visible messages for visibility.
func (s *Store) Receive(ctx context.Context, queue string, max int, visibility time.Duration) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("queue store not initialized")
	}
	if max <= 0 {
		max = 1
	}
	rows, err := s.db.QueryContext(ctx, receiveQuery, queue, max, visibility.Seconds())
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) Ack(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("queue store not initialized")
	}
	if _, err := s.db.ExecContext(ctx, ackQuery, id); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}

// Release makes a leased message visible again after delay.
func (s *Store) Release(ctx context.Context, id string, delay time.Duration, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("queue store not initialized")
	}
	if delay < 0 {
		delay = 0
	}
	if _, err := s.db.ExecContext(ctx, releaseQuery, id, delay.Seconds(), truncate(reason)); err != nil {
		return fmt.Errorf("release %s: %w", id, err)
	}
	return nil
}

func (s *Store) DeadLetter(ctx context.Context, id string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("queue store not initialized")
	}
	if _, err := s.db.ExecContext(ctx, deadLetterQuery, id, truncate(reason)); err != nil {
		return fmt.Errorf("dead letter %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListDeadLetters(ctx context.Context, queue string, limit int) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("queue store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, listDeadLettersQuery, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Redrive returns dead-lettered messages to the queue. An empty id redrives
// the whole queue.
func (s *Store) Redrive(ctx context.Context, queue, id string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("queue store not initialized")
	}
	res, err := s.db.ExecContext(ctx, redriveQuery, queue, strings.TrimSpace(id))
	if err != nil {
		return 0, fmt.Errorf("redrive: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) PurgeDeadLetters(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("queue store not initialized")
	}
	res, err := s.db.ExecContext(ctx, purgeDeadLettersQuery, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return res.RowsAffected()
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	out := make([]Message, 0)
	for rows.Next() {
		var msg Message
		var attrsJSON []byte
		var body string
		var deadLetteredAt sql.NullTime
		var lastError sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Queue, &attrsJSON, &body, &msg.ReceiveCount, &msg.EnqueuedAt, &deadLetteredAt, &lastError); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &msg.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes: %w", err)
			}
		}
		msg.Body = []byte(body)
		if deadLetteredAt.Valid {
			at := deadLetteredAt.Time.UTC()
			msg.DeadLetteredAt = &at
		}
		if lastError.Valid {
			msg.LastError = lastError.String
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return out, nil
}

func truncate(reason string) string {
	const max = 2000
	if len(reason) > max {
		return reason[:max]
	}
	return reason
}
