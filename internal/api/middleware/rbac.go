package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

// RBAC enforces role-based access control. The role is read from the
// caller's profile on every request, never from the token, so a role change
// or deactivation takes effect immediately. Must run after Auth.
func RBAC(profiles ports.ProfileStore, allowedRoles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, _ := c.Get(ContextUserID).(string)
			if userID == "" {
				return domain.ErrSessionNotFound
			}

			profile, err := profiles.FindByIdentity(c.Request().Context(), userID)
			if err != nil {
				return err
			}
			if profile == nil || !profile.IsActive {
				return domain.ErrForbidden
			}
			if _, ok := allowed[profile.Role]; !ok {
				return domain.ErrForbidden
			}

			c.Set(ContextProfile, profile)
			return next(c)
		}
	}
}
