package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/velstore/accounts-api/internal/httputil"
	"github.com/velstore/accounts-api/internal/logging"
)

// AdminHandler exposes the admin user-management endpoints. These act on
// arbitrary users by id; the router gates them behind the admin role.
type AdminHandler struct {
	store  Store
	logger *logging.Logger
}

func NewAdminHandler(store Store, logger *logging.Logger) *AdminHandler {
	return &AdminHandler{store: store, logger: logger}
}

// UpdateRoleRequest represents the admin role update body
type UpdateRoleRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// List returns every user
// @Summary      List all users
// @Description  Returns the full collection; no pagination.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} map[string]any
// @Failure      403 {object} httputil.ErrorResponse
// @Router       /admin/users [get]
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.List(r.Context())
	if err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("failed to list users", "error", err.Error())
		httputil.RespondNormalizedError(w, err)
		return
	}

	httputil.RespondJSON(w, map[string]any{
		"success": true,
		"users":   users,
	}, http.StatusOK)
}

// Get returns one user by id
// @Summary      Get a single user
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "User id"
// @Success      200 {object} map[string]any
// @Failure      400 {object} httputil.ErrorResponse "Malformed id"
// @Failure      404 {object} httputil.ErrorResponse "Unknown id"
// @Router       /admin/user/{id} [get]
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondNormalizedError(w, err)
		return
	}

	existing, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.RespondError(w,
				fmt.Sprintf("User does not exist with id: %s", id),
				http.StatusNotFound)
			return
		}
		httputil.RespondNormalizedError(w, err)
		return
	}

	httputil.RespondJSON(w, map[string]any{
		"success": true,
		"user":    existing,
	}, http.StatusOK)
}

// UpdateRole updates a user's name, email and role
// @Summary      Update a user's role
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path string            true "User id"
// @Param        request body UpdateRoleRequest true "Name, email and role"
// @Success      200 {object} map[string]any
// @Failure      400 {object} httputil.ErrorResponse "Malformed id, unknown id or invalid role"
// @Router       /admin/user/{id} [put]
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondNormalizedError(w, err)
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid update role request body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	role := strings.TrimSpace(req.Role)
	if role != RoleUser && role != RoleAdmin {
		httputil.RespondError(w, fmt.Sprintf("Invalid role: %s", role), http.StatusBadRequest)
		return
	}

	if err := h.store.UpdateRole(r.Context(), id, req.Name, req.Email, role); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.RespondError(w,
				fmt.Sprintf("User does not exist with id: %s", id),
				http.StatusBadRequest)
			return
		}
		logger.Error("failed to update role", "user_id", id, "error", err.Error())
		httputil.RespondNormalizedError(w, err)
		return
	}

	logger.Info("role updated", "user_id", id, "role", role)
	httputil.RespondJSON(w, map[string]any{
		"success": true,
		"message": "Role updated successfully",
	}, http.StatusOK)
}

// Delete removes a user
// @Summary      Delete a user
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "User id"
// @Success      200 {object} map[string]any
// @Failure      400 {object} httputil.ErrorResponse "Malformed or unknown id"
// @Router       /admin/user/{id} [delete]
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondNormalizedError(w, err)
		return
	}

	// TODO: release the deleted user's avatar object from storage
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.RespondError(w,
				fmt.Sprintf("User does not exist with id: %s", id),
				http.StatusBadRequest)
			return
		}
		logger.Error("failed to delete user", "user_id", id, "error", err.Error())
		httputil.RespondNormalizedError(w, err)
		return
	}

	logger.Info("user deleted", "user_id", id)
	httputil.RespondJSON(w, map[string]any{
		"success": true,
		"message": "User deleted successfully",
	}, http.StatusOK)
}
