package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/stomacrm/clinic/internal/api/middleware"
	"github.com/stomacrm/clinic/internal/core/domain"
)

// ctxSession returns the session and raw access token injected by the Auth
// middleware. Their absence means the route was registered without Auth.
func ctxSession(c echo.Context) (*domain.Session, string, error) {
	session, _ := c.Get(middleware.ContextSession).(*domain.Session)
	token, _ := c.Get(middleware.ContextToken).(string)
	if session == nil || token == "" {
		return nil, "", domain.ErrSessionNotFound
	}
	return session, token, nil
}

// bindRequest binds the body and runs the registered validator. Both
// failures are reported as invalid input.
func bindRequest(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid payload", domain.ErrInvalidInput)
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
	}
	return nil
}
