// Package dispatch routes queued contract requests to the lifecycle service
// and translates outcomes into queue dispositions.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/platform/queue"
	"github.com/unicorn-labs/unicorn-go/internal/service/lifecycle"
)

type Lifecycle interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (domain.Contract, error)
	Approve(ctx context.Context, req lifecycle.ApproveRequest) (domain.Contract, error)
}

type Dispatcher struct {
	lifecycle Lifecycle
	routes    Routes
	logger    *slog.Logger
}

func New(svc Lifecycle, routes Routes, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if routes.aliases == nil {
		routes = DefaultRoutes()
	}
	return &Dispatcher{lifecycle: svc, routes: routes, logger: logger}
}

// Handle implements queue.Handler.
func (d *Dispatcher) Handle(ctx context.Context, msg queue.Message) error {
	raw, ok := msg.Attribute(queue.AttributeOperation)
	if !ok {
		return queue.Permanent(domain.Validationf("message %s has no %s attribute", msg.ID, queue.AttributeOperation))
	}
	op, ok := d.routes.Resolve(raw)
	if !ok {
		d.logger.Warn("unknown operation dropped", "message_id", msg.ID, "operation", raw)
		return nil
	}

	switch op {
	case OpCreate:
		var req lifecycle.CreateRequest
		if err := json.Unmarshal(msg.Body, &req); err != nil {
			return queue.Permanent(domain.Validationf("decode create request: %v", err))
		}
		_, err := d.lifecycle.Create(ctx, req)
		return Disposition(err)
	case OpApprove:
		var req lifecycle.ApproveRequest
		if err := json.Unmarshal(msg.Body, &req); err != nil {
			return queue.Permanent(domain.Validationf("decode approve request: %v", err))
		}
		_, err := d.lifecycle.Approve(ctx, req)
		if current, ok := domain.CurrentStatus(err); ok && current == domain.StatusApproved {
			d.logger.Info("duplicate approve ignored", "message_id", msg.ID, "property_id", req.PropertyID)
			return nil
		}
		return Disposition(err)
	default:
		d.logger.Warn("unhandled operation dropped", "message_id", msg.ID, "operation", op)
		return nil
	}
}

// Disposition marks errors that redelivery cannot fix as permanent.
func Disposition(err error) error {
	if err == nil {
		return nil
	}
	if domain.Retryable(err) {
		return err
	}
	return queue.Permanent(err)
}

// StatusChangedHandler is the subset of the status propagator the consumer needs.
type StatusChangedHandler interface {
	Handle(ctx context.Context, body []byte) error
}

// StatusChanged adapts the propagator to the queue consumer.
func StatusChanged(h StatusChangedHandler) queue.Handler {
	return queue.HandlerFunc(func(ctx context.Context, msg queue.Message) error {
		return Disposition(h.Handle(ctx, msg.Body))
	})
}
