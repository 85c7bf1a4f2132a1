package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/api/metrics"
	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

// AdminHandler exposes user management to admins and the key-protected
// recovery endpoint.
type AdminHandler struct {
	admin ports.AdminService
	log   zerolog.Logger
}

func NewAdminHandler(admin ports.AdminService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		admin: admin,
		log:   log.With().Str("component", "admin_handler").Logger(),
	}
}

// ListUsers handles GET /admin/users.
//
// @Summary      List user profiles
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  usersResponse
// @Failure      403  {object}  errorResponse
// @Router       /admin/users [get]
func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.admin.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	if users == nil {
		users = []*domain.Profile{}
	}
	return c.JSON(http.StatusOK, usersResponse{Users: users})
}

// ChangeRole handles PATCH /admin/users/:id/role.
//
// @Summary      Change a user's role
// @Tags         admin
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string             true  "User ID"
// @Param        body  body  changeRoleRequest  true  "New role"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /admin/users/{id}/role [patch]
func (h *AdminHandler) ChangeRole(c echo.Context) error {
	var req changeRoleRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	err := h.admin.ChangeRole(c.Request().Context(), c.Param("id"), domain.Role(req.Role))
	return h.finish(c, "change_role", err)
}

// SetActive handles PATCH /admin/users/:id/active.
//
// @Summary      Activate or deactivate a user
// @Tags         admin
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string            true  "User ID"
// @Param        body  body  setActiveRequest  true  "Activation flag"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Router       /admin/users/{id}/active [patch]
func (h *AdminHandler) SetActive(c echo.Context) error {
	var req setActiveRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	err := h.admin.SetActive(c.Request().Context(), c.Param("id"), *req.IsActive)
	return h.finish(c, "set_active", err)
}

// ResetPassword handles POST /admin/users/:id/password. The user's sessions
// are revoked.
//
// @Summary      Set a new password for a user
// @Tags         admin
// @Accept       json
// @Security     BearerAuth
// @Param        id    path  string                true  "User ID"
// @Param        body  body  resetPasswordRequest  true  "New password"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /admin/users/{id}/password [post]
func (h *AdminHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	err := h.admin.ResetPassword(c.Request().Context(), c.Param("id"), req.Password)
	return h.finish(c, "reset_password", err)
}

// Recover handles POST /admin/recovery. No session is required; the
// configured recovery key authorises the request.
//
// @Summary      Recover admin access
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        body  body      recoveryRequest  true  "Recovery request"
// @Success      200   {object}  recoveryResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /admin/recovery [post]
func (h *AdminHandler) Recover(c echo.Context) error {
	var req recoveryRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	res, err := h.admin.Recover(c.Request().Context(), ports.RecoveryInput{
		Key:      req.Key,
		Action:   ports.RecoveryAction(req.Action),
		UserID:   req.UserID,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	metrics.AdminActionsTotal.WithLabelValues("recover", adminResult(err)).Inc()
	if err != nil {
		h.log.Warn().Err(err).Str("action", req.Action).Str("ip", c.RealIP()).Msg("admin recovery rejected")
		return err
	}

	if req.Action == string(ports.RecoveryCreate) {
		metrics.ProfilesProvisionedTotal.WithLabelValues("recovery").Inc()
	}
	h.log.Info().Str("action", req.Action).Str("user_id", res.UserID).Msg("admin recovered")

	return c.JSON(http.StatusOK, recoveryResponse{Message: res.Message, UserID: res.UserID})
}

func (h *AdminHandler) finish(c echo.Context, action string, err error) error {
	metrics.AdminActionsTotal.WithLabelValues(action, adminResult(err)).Inc()
	if err != nil {
		return err
	}
	h.log.Info().Str("action", action).Str("user_id", c.Param("id")).Msg("admin action applied")
	return c.NoContent(http.StatusNoContent)
}

func adminResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrLastActiveAdmin):
		return "last_active_admin"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrInvalidRecoveryKey):
		return "invalid_key"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
