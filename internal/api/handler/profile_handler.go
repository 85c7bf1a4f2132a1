package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/api/metrics"
	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

// ProfileHandler serves the caller's own profile record.
type ProfileHandler struct {
	profiles ports.ProfileStore
	log      zerolog.Logger
}

func NewProfileHandler(profiles ports.ProfileStore, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		log:      log.With().Str("component", "profile_handler").Logger(),
	}
}

// Me handles GET /profiles/me.
//
// @Summary      Read the caller's profile
// @Tags         profiles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.Profile
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /profiles/me [get]
func (h *ProfileHandler) Me(c echo.Context) error {
	session, _, err := ctxSession(c)
	if err != nil {
		return err
	}

	profile, err := h.profiles.FindByIdentity(c.Request().Context(), session.Identity.ID)
	if err != nil {
		return err
	}
	if profile == nil {
		return domain.ErrProfileNotFound
	}
	return c.JSON(http.StatusOK, profile)
}

// Provision handles PUT /profiles/me. A caller can only create their own
// record, always as an active receptionist. An existing record is returned
// unchanged so this route can never re-activate a user or change a role.
//
// @Summary      Provision the caller's profile
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      provisionProfileRequest  true  "Display defaults"
// @Success      200   {object}  domain.Profile
// @Success      201   {object}  domain.Profile
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /profiles/me [put]
func (h *ProfileHandler) Provision(c echo.Context) error {
	session, _, err := ctxSession(c)
	if err != nil {
		return err
	}

	var req provisionProfileRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	identity := session.Identity

	existing, err := h.profiles.FindByIdentity(ctx, identity.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return c.JSON(http.StatusOK, existing)
	}

	if identity.FullName == "" {
		identity.FullName = req.FullName
	}
	if identity.Email == "" {
		identity.Email = req.Email
	}
	defaults := domain.DefaultProfile(identity)

	profile, err := h.profiles.UpsertByIdentity(ctx, identity.ID, defaults)
	if err != nil {
		return err
	}

	metrics.ProfilesProvisionedTotal.WithLabelValues("self").Inc()
	h.log.Info().Str("user_id", identity.ID).Msg("profile provisioned")

	return c.JSON(http.StatusCreated, profile)
}
