package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler processes one delivery. A nil error acknowledges the message, an
// error wrapped with Permanent dead-letters it, any other error retries it.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type Broker interface {
	Receive(ctx context.Context, queue string, max int, visibility time.Duration) ([]Message, error)
	Ack(ctx context.Context, id string) error
	Release(ctx context.Context, id string, delay time.Duration, reason string) error
	DeadLetter(ctx context.Context, id string, reason string) error
}

// DeadLetterArchive keeps a copy of every dead-lettered message outside the
// queue table.
type DeadLetterArchive interface {
	Archive(ctx context.Context, msg Message, reason string) error
}

type Consumer struct {
	logger  *slog.Logger
	broker  Broker
	handler Handler
	archive DeadLetterArchive

	queue        string
	workers      int
	batch        int
	pollInterval time.Duration
	visibility   time.Duration
	maxReceives  int
	retryBase    time.Duration
}

func NewConsumer(logger *slog.Logger, broker Broker, queue string, handler Handler, cfg Config) *Consumer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		logger:       logger,
		broker:       broker,
		handler:      handler,
		queue:        strings.TrimSpace(queue),
		workers:      cfg.Workers,
		batch:        cfg.Batch,
		pollInterval: cfg.PollInterval,
		visibility:   cfg.Visibility,
		maxReceives:  cfg.MaxReceives,
		retryBase:    cfg.RetryBase,
	}
}

// WithArchive attaches a dead-letter archive. Archive failures are logged and
// do not block dead-lettering.
func (c *Consumer) WithArchive(archive DeadLetterArchive) *Consumer {
	c.archive = archive
	return c
}

// Run polls until ctx is cancelled. Batches that come back full are followed
// by another receive without waiting for the ticker.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil || c.broker == nil || c.handler == nil {
		return fmt.Errorf("queue consumer not initialized")
	}
	if c.queue == "" {
		return errors.New("queue is required")
	}
	c.log(slog.LevelInfo, "consumer started", "workers", c.workers, "batch", c.batch)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		for {
			n := c.PollOnce(ctx)
			if n < c.batch || ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			c.log(slog.LevelInfo, "consumer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce receives one batch and processes it on the worker pool. It returns
// the number of messages received.
func (c *Consumer) PollOnce(ctx context.Context) int {
	msgs, err := c.broker.Receive(ctx, c.queue, c.batch, c.visibility)
	if err != nil {
		if ctx.Err() == nil {
			c.log(slog.LevelError, "receive failed", "error", err)
		}
		return 0
	}
	if len(msgs) == 0 {
		return 0
	}

	var g errgroup.Group
	g.SetLimit(c.workers)
	for _, msg := range msgs {
		g.Go(func() error {
			c.process(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()
	return len(msgs)
}

func (c *Consumer) process(ctx context.Context, msg Message) {
	// Bookkeeping must survive shutdown so a finished message is not redelivered.
	bookCtx := context.WithoutCancel(ctx)

	if c.maxReceives > 0 && msg.ReceiveCount > c.maxReceives {
		c.deadLetter(bookCtx, msg, fmt.Sprintf("max receives exceeded (%d)", c.maxReceives))
		return
	}

	err := c.handler.Handle(ctx, msg)
	switch {
	case err == nil:
		if ackErr := c.broker.Ack(bookCtx, msg.ID); ackErr != nil {
			c.log(slog.LevelError, "ack failed", "message_id", msg.ID, "error", ackErr)
		}
	case IsPermanent(err):
		c.deadLetter(bookCtx, msg, err.Error())
	default:
		delay := c.retryDelay(msg.ReceiveCount)
		c.log(slog.LevelWarn, "message retry scheduled",
			"message_id", msg.ID,
			"receive_count", msg.ReceiveCount,
			"delay", delay.String(),
			"error", err,
		)
		if relErr := c.broker.Release(bookCtx, msg.ID, delay, err.Error()); relErr != nil {
			c.log(slog.LevelError, "release failed", "message_id", msg.ID, "error", relErr)
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg Message, reason string) {
	c.log(slog.LevelWarn, "message dead-lettered",
		"message_id", msg.ID,
		"receive_count", msg.ReceiveCount,
		"reason", reason,
	)
	if err := c.broker.DeadLetter(ctx, msg.ID, reason); err != nil {
		c.log(slog.LevelError, "dead letter failed", "message_id", msg.ID, "error", err)
		return
	}
	if c.archive == nil {
		return
	}
	if err := c.archive.Archive(ctx, msg, reason); err != nil {
		c.log(slog.LevelError, "dead letter archive failed", "message_id", msg.ID, "error", err)
	}
}

// retryDelay doubles from retryBase per receive, capped at the visibility
// timeout.
func (c *Consumer) retryDelay(receiveCount int) time.Duration {
	if c.retryBase <= 0 {
		return 0
	}
	delay := c.retryBase
	for i := 1; i < receiveCount && delay < c.visibility; i++ {
		delay *= 2
	}
	if delay > c.visibility {
		delay = c.visibility
	}
	return delay
}

func (c *Consumer) log(level slog.Level, msg string, attrs ...any) {
	if c.logger == nil {
		return
	}
	fields := []any{"component", "queue_consumer", "queue", c.queue}
	fields = append(fields, attrs...)
	c.logger.Log(context.Background(), level, msg, fields...)
}
