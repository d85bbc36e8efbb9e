package access

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Handler exposes the evaluation endpoints.
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

// Check answers the caller's own permission question with a bare boolean.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	logEnabled := req.Log == nil || *req.Log
	decision, err := h.service.Check(r.Context(), *principal, req.Resource, req.Action, req.Context, logEnabled)
	if err != nil {
		h.logger.Error("access check failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Allowed: decision.Allowed})
}

// Evaluate returns the full decision, including source and matched policies,
// for an arbitrary user within the caller's tenant.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var req EvaluateSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	decision, err := h.service.Evaluate(r.Context(), principal.TenantID, req.UserID, req.Resource, req.Action, req.Context)
	if err != nil {
		h.logger.Error("evaluate failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

// EvaluateAsync queues an evaluation and returns the task id immediately.
func (h *Handler) EvaluateAsync(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var req EvaluateAsyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	taskID, err := h.service.EnqueueEvaluate(r.Context(), EvaluateRequest{
		TenantID: principal.TenantID,
		UserID:   req.UserID,
		Resource: req.Resource,
		Action:   req.Action,
		Context:  req.Context,
	})
	if err != nil {
		h.logger.Error("enqueue evaluate failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueuedResponse{TaskID: taskID, Status: "queued"})
}

// MountRoutes attaches the evaluation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.Check)
	r.Post("/evaluate", h.Evaluate)
	r.Post("/evaluate-async", h.EvaluateAsync)
}
