package webhooks

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// CreateEndpointRequest registers a new webhook receiver.
type CreateEndpointRequest struct {
	URL    string `json:"url" validate:"required"`
	Secret string `json:"secret" validate:"required,min=16"`
	Active *bool  `json:"active"`
}

// TestDeliveryRequest triggers a test delivery against one endpoint.
type TestDeliveryRequest struct {
	EventType string          `json:"eventType" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// Handler exposes the webhook management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var req CreateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	endpoint, err := h.service.CreateEndpoint(r.Context(), principal.TenantID, req)
	if err != nil {
		h.logger.Error("create endpoint failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, endpoint)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	endpoints, err := h.service.ListEndpoints(r.Context(), principal.TenantID)
	if err != nil {
		h.logger.Error("list endpoints failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if endpoints == nil {
		endpoints = []Endpoint{}
	}
	httpx.JSON(w, http.StatusOK, endpoints)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	if err := h.service.DeleteEndpoint(r.Context(), principal.TenantID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, err)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Deliveries(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	deliveries, err := h.service.Deliveries(r.Context(), principal.TenantID, r.URL.Query().Get("status"), r.URL.Query().Get("eventType"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, deliveries)
}

func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var req TestDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.TestDelivery(r.Context(), principal.TenantID, chi.URLParam(r, "id"), req.EventType, req.Payload)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, err)
			return
		}
		h.logger.Error("test delivery failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// MountRoutes attaches webhook routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Delete("/{id}", h.Delete)
	r.Get("/deliveries", h.Deliveries)
	r.Post("/{id}/test", h.Test)
}
