package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-io/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Handler menangani permintaan audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// Timeline mengembalikan audit trail tenant dengan paging.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	result, err := h.service.Timeline(r.Context(), principal.TenantID, filters)
	if err != nil {
		h.logger.Error("audit timeline failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	f := Filters{
		UserID:   q.Get("userId"),
		Resource: q.Get("resource"),
		Action:   q.Get("action"),
	}
	if raw := q.Get("allowed"); raw != "" {
		allowed, err := strconv.ParseBool(raw)
		if err != nil {
			return Filters{}, err
		}
		f.Allowed = &allowed
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, err
		}
		f.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, err
		}
		f.To = to
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return Filters{}, err
		}
		f.Page = page
	}
	if raw := q.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return Filters{}, err
		}
		f.PageSize = size
	}
	return f, nil
}

// MountRoutes memasang route audit.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Timeline)
}
