package rbac

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

// Handler exposes role and permission management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type createRoleRequest struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name" validate:"required"`
}

type updateRoleRequest struct {
	Code *string `json:"code"`
	Name *string `json:"name"`
}

type assignPermissionsRequest struct {
	PermissionCodes []string `json:"permissionCodes" validate:"required,min=1"`
}

type createPermissionRequest struct {
	Code        string `json:"code" validate:"required"`
	Description string `json:"description"`
}

type roleResponse struct {
	ID          string               `json:"id"`
	TenantID    string               `json:"tenantId"`
	Code        string               `json:"code"`
	Name        string               `json:"name"`
	BuiltIn     bool                 `json:"builtIn"`
	Permissions []permissionResponse `json:"permissions,omitempty"`
}

type permissionResponse struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{ID: role.ID, TenantID: role.TenantID, Code: role.Code, Name: role.Name, BuiltIn: role.BuiltIn}
}

func toRoleWithPermissionsResponse(role RoleWithPermissions) roleResponse {
	out := toRoleResponse(role.Role)
	out.Permissions = make([]permissionResponse, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		out.Permissions = append(out.Permissions, permissionResponse{ID: p.ID, Code: p.Code, Description: p.Description})
	}
	return out
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	roles, err := h.service.ListRoles(r.Context(), principal.TenantID)
	if err != nil {
		h.logger.Error("list roles failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	role, err := h.service.GetRole(r.Context(), principal.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleWithPermissionsResponse(*role))
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), principal.TenantID, req.Code, req.Name)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			httpx.RespondError(w, err)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(*role))
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	role, err := h.service.UpdateRole(r.Context(), principal.TenantID, chi.URLParam(r, "id"), req.Code, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(*role))
}

func (h *Handler) AssignPermissions(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req assignPermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.AssignPermissions(r.Context(), principal.TenantID, chi.URLParam(r, "id"), req.PermissionCodes)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.RespondError(w, err)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleWithPermissionsResponse(*role))
}

func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{ID: p.ID, Code: p.Code, Description: p.Description})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.CreatePermission(r.Context(), req.Code, req.Description)
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			httpx.RespondError(w, err)
			return
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{ID: p.ID, Code: p.Code, Description: p.Description})
}

// MountRoleRoutes attaches role management routes.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Get("/", h.ListRoles)
	r.Post("/", h.CreateRole)
	r.Get("/{id}", h.GetRole)
	r.Patch("/{id}", h.UpdateRole)
	r.Post("/{id}/permissions", h.AssignPermissions)
}

// MountPermissionRoutes attaches permission management routes.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Get("/", h.ListPermissions)
	r.Post("/", h.CreatePermission)
}
