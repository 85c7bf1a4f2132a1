package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// Context keys set by Auth and RBAC.
const (
	ContextUserID  = "user_id"
	ContextSession = "session"
	ContextToken   = "access_token"
	ContextProfile = "profile"
)

// SessionValidator resolves an access token to its live session.
type SessionValidator interface {
	Session(ctx context.Context, accessToken string) (*domain.Session, error)
}

// Auth validates the bearer token against the session store and injects the
// session into context. A revoked or expired session is rejected even when
// the token signature is still valid.
func Auth(sessions SessionValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return err
			}

			session, err := sessions.Session(c.Request().Context(), token)
			if err != nil {
				return err
			}

			c.Set(ContextUserID, session.Identity.ID)
			c.Set(ContextSession, session)
			c.Set(ContextToken, token)

			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", domain.ErrSessionNotFound)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: invalid authorization header", domain.ErrSessionNotFound)
	}
	return strings.TrimSpace(parts[1]), nil
}
