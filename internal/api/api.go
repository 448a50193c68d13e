// Package api implements the HTTP handlers of the recommendation
// service: the compute and latest endpoints, scenario simulation and
// webhook subscription management.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agrisense/irrigation-advisor/internal/core/middleware"
	"github.com/agrisense/irrigation-advisor/internal/core/model"
	"github.com/agrisense/irrigation-advisor/internal/orchestrator"
	"github.com/agrisense/irrigation-advisor/internal/webhook"
)

// IdempotencyHeader opts a compute request into client-intent
// deduplication.
const IdempotencyHeader = "Idempotency-Key"

type API struct {
	orc        *orchestrator.Orchestrator
	subs       *webhook.SubscriptionStore
	dispatcher *webhook.Dispatcher
	logger     *slog.Logger
}

func New(orc *orchestrator.Orchestrator, subs *webhook.SubscriptionStore, dispatcher *webhook.Dispatcher, logger *slog.Logger) *API {
	return &API{orc: orc, subs: subs, dispatcher: dispatcher, logger: logger}
}

// Compute handles POST /v1/blocks/{blockID}/recommendations:compute.
func (a *API) Compute(w http.ResponseWriter, r *http.Request) {
	blockID := chi.URLParam(r, "blockID")

	var req model.ComputeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	rec, err := a.orc.ComputeOrReuse(r.Context(), middleware.Tenant(r), blockID, r.Header.Get(IdempotencyHeader), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Latest handles GET /v1/blocks/{blockID}/recommendations.
func (a *API) Latest(w http.ResponseWriter, r *http.Request) {
	blockID := chi.URLParam(r, "blockID")

	rec, err := a.orc.Latest(r.Context(), blockID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "no recommendation for block "+blockID)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type simulateRequest struct {
	BlockIDs     []string           `json:"block_ids"`
	Constraints  *model.Constraints `json:"constraints,omitempty"`
	Targets      *model.Targets     `json:"targets,omitempty"`
	HorizonHours float64            `json:"horizon_hours"`
}

// Simulate handles POST /v1/scenarios:simulate.
func (a *API) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	out, err := a.orc.Simulate(r.Context(), req.BlockIDs, model.ComputeRequest{
		Constraints:  req.Constraints,
		Targets:      req.Targets,
		HorizonHours: req.HorizonHours,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type createWebhookRequest struct {
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
	Secret     string   `json:"secret,omitempty"`
}

// CreateWebhook handles POST /v1/webhooks.
func (a *API) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if len(req.EventTypes) == 0 {
		writeError(w, http.StatusBadRequest, "at least one event type is required")
		return
	}

	sub := webhook.Subscription{
		TenantID:   middleware.Tenant(r),
		URL:        req.URL,
		EventTypes: req.EventTypes,
		Secret:     req.Secret,
	}
	if err := a.subs.Create(r.Context(), &sub); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListWebhooks handles GET /v1/webhooks.
func (a *API) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := a.subs.List(r.Context(), middleware.Tenant(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if subs == nil {
		subs = []webhook.Subscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

// DeleteWebhook handles DELETE /v1/webhooks/{id}.
func (a *API) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.Tenant(r)
	id := chi.URLParam(r, "id")

	sub, err := a.subs.Get(r.Context(), tenant, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err := a.subs.Delete(r.Context(), tenant, id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestWebhook handles POST /v1/webhooks/test. It returns a signed
// sample event without delivering anything.
func (a *API) TestWebhook(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.dispatcher.CreateTestEvent(middleware.Tenant(r)))
}

// fail maps domain errors onto HTTP statuses.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrBlockNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case model.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
