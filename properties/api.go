package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unicorn-labs/unicorn-go/internal/domain"
	"github.com/unicorn-labs/unicorn-go/internal/platform/httpserver"
	"github.com/unicorn-labs/unicorn-go/internal/platform/workflow"
)

type tokenRegistry interface {
	Store(ctx context.Context, propertyID, token string) (*workflow.ResumeSignal, error)
}

type projectionReader interface {
	Get(ctx context.Context, key domain.ProjectionKey) (domain.PropertyProjection, error)
}

type propertiesAPI struct {
	logger      *slog.Logger
	tokens      tokenRegistry
	projections projectionReader
}

func newPropertiesAPI(logger *slog.Logger, tokens tokenRegistry, projections projectionReader) *propertiesAPI {
	return &propertiesAPI{logger: logger, tokens: tokens, projections: projections}
}

func (api *propertiesAPI) register(r chi.Router) {
	r.Put("/workflow-tokens", api.handleStoreToken)
	r.Get("/properties/{country}/{city}/{street}/{number}", api.handleGetProperty)
}

type storeTokenRequest struct {
	PropertyID string `json:"property_id"`
	Token      string `json:"token"`
}

type storeTokenResponse struct {
	PropertyID string `json:"property_id"`
	Resumed    bool   `json:"resumed"`
}

// handleStoreToken is called by a workflow pausing until the contract is
// approved.
func (api *propertiesAPI) handleStoreToken(w http.ResponseWriter, r *http.Request) {
	var req storeTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		httpserver.WriteError(w, r, domain.Validationf("invalid json: %v", err))
		return
	}
	signal, err := api.tokens.Store(r.Context(), req.PropertyID, req.Token)
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, storeTokenResponse{
		PropertyID: domain.NormalizePropertyID(req.PropertyID),
		Resumed:    signal != nil,
	})
}

type propertyResponse struct {
	PK                     string    `json:"pk"`
	SK                     string    `json:"sk"`
	ContractStatus         string    `json:"contract_status"`
	PropertyNumber         string    `json:"property_number"`
	ContractID             string    `json:"contract_id,omitempty"`
	ContractLastModifiedOn int64     `json:"contract_last_modified_on"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (api *propertiesAPI) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	ref := domain.PropertyRef{
		Country: chi.URLParam(r, "country"),
		City:    chi.URLParam(r, "city"),
		Street:  chi.URLParam(r, "street"),
		Number:  chi.URLParam(r, "number"),
	}
	projection, err := api.projections.Get(r.Context(), ref.ProjectionKey())
	if err != nil {
		httpserver.WriteError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, propertyResponse{
		PK:                     projection.Key.Partition,
		SK:                     projection.Key.Sort,
		ContractStatus:         projection.Status,
		PropertyNumber:         projection.PropertyNumber,
		ContractID:             projection.ContractID,
		ContractLastModifiedOn: projection.ContractLastModifiedOn,
		UpdatedAt:              projection.UpdatedAt,
	})
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
