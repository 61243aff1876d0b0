package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/unicorn-labs/unicorn-go/internal/dispatch"
	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/platform/httpserver"
	"github.com/unicorn-labs/unicorn-go/internal/platform/queue"
	"github.com/unicorn-labs/unicorn-go/internal/service/lifecycle"
)

type requestQueue interface {
	Enqueue(ctx context.Context, queue string, attributes map[string]string, body []byte) (string, error)
}

type contractReader interface {
	Get(ctx context.Context, propertyID string) (domain.Contract, error)
}

// contractsAPI accepts create and approve requests onto the contract request
// queue; the dispatcher applies them asynchronously.
type contractsAPI struct {
	logger    *slog.Logger
	queue     requestQueue
	contracts contractReader
}

func newContractsAPI(logger *slog.Logger, q requestQueue, contracts contractReader) *contractsAPI {
	return &contractsAPI{logger: logger, queue: q, contracts: contracts}
}

func (api *contractsAPI) register(r chi.Router) {
	r.Post("/contracts", api.handleCreate)
	r.Put("/contracts", api.handleApprove)
	r.Get("/contracts/*", api.handleGet)
}

type acceptedResponse struct {
	MessageID  string `json:"message_id"`
	Operation  string `json:"operation"`
	PropertyID string `json:"property_id"`
}

func (api *contractsAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		httpserver.WriteError(w, r, domain.Validationf("invalid json: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	api.enqueue(w, r, dispatch.OpCreate, req.PropertyID, req)
}

func (api *contractsAPI) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.ApproveRequest
	if err := decodeJSON(r, &req); err != nil {
		httpserver.WriteError(w, r, domain.Validationf("invalid json: %v", err))
		return
	}
	if req.PropertyID == "" {
		httpserver.WriteError(w, r, domain.Validationf("property_id is required"))
		return
	}
	api.enqueue(w, r, dispatch.OpApprove, req.PropertyID, req)
}

func (api *contractsAPI) enqueue(w http.ResponseWriter, r *http.Request, op dispatch.Operation, propertyID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	attrs := map[string]string{queue.AttributeOperation: string(op)}
	if requestID, ok := httpserver.RequestIDFromContext(r.Context()); ok {
		attrs["request_id"] = requestID
	}
	id, err := api.queue.Enqueue(r.Context(), queue.QueueContractRequests, attrs, body)
	if err != nil {
		api.logger.Error("enqueue contract request failed", "operation", op, "property_id", propertyID, "error", err)
		httpserver.WriteError(w, r, errors.Join(domain.ErrStore, err))
		return
	}
	httpserver.WriteJSON(w, http.StatusAccepted, acceptedResponse{
		MessageID:  id,
		Operation:  string(op),
		PropertyID: domain.NormalizePropertyID(propertyID),
	})
}

func (api *contractsAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || raw == "" {
		httpserver.WriteError(w, r, domain.Validationf("property_id is required"))
		return
	}
	contract, err := api.contracts.Get(r.Context(), domain.NormalizePropertyID(raw))
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, contract)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}
