package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/api/metrics"
	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

type AuthHandler struct {
	accounts ports.AccountService
	events   ports.SessionSubscriber
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewAuthHandler(accounts ports.AccountService, events ports.SessionSubscriber, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		events:   events,
		log:      log.With().Str("component", "auth_handler").Logger(),
	}
}

// SignUp creates a confirmed account. The profile is provisioned on first
// sign-in.
//
// @Summary      Create an account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signUpRequest  true  "Account details"
// @Success      201   {object}  domain.Account
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /auth/sign-up [post]
func (h *AuthHandler) SignUp(c echo.Context) error {
	var req signUpRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	account, err := h.accounts.SignUp(c.Request().Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, account)
}

// SignIn exchanges credentials for a session.
//
// @Summary      Sign in with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signInRequest  true  "Credentials"
// @Success      200   {object}  domain.Session
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /auth/sign-in [post]
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := bindRequest(c, &req); err != nil {
		return err
	}

	session, err := h.accounts.SignIn(c.Request().Context(), req.Email, req.Password)
	metrics.SignInsTotal.WithLabelValues(signInResult(err)).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// SignOut revokes the caller's session.
//
// @Summary      Sign out
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  errorResponse
// @Router       /auth/sign-out [post]
func (h *AuthHandler) SignOut(c echo.Context) error {
	_, token, err := ctxSession(c)
	if err != nil {
		return err
	}
	if err := h.accounts.SignOut(c.Request().Context(), token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Session returns the caller's live session.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.Session
// @Failure      401  {object}  errorResponse
// @Router       /auth/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	session, _, err := ctxSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// Refresh re-issues the access token of the caller's session.
//
// @Summary      Refresh the access token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.Session
// @Failure      401  {object}  errorResponse
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	_, token, err := ctxSession(c)
	if err != nil {
		return err
	}
	session, err := h.accounts.Refresh(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// Events streams auth change notifications for the caller over a websocket.
// A sign-out of another session of the same user is only forwarded once it
// has invalidated this one too.
//
// @Summary      Auth change notifications (websocket)
// @Tags         auth
// @Security     BearerAuth
// @Success      101
// @Failure      401  {object}  errorResponse
// @Router       /auth/events [get]
func (h *AuthHandler) Events(c echo.Context) error {
	session, token, err := ctxSession(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	events, err := h.events.Subscribe(ctx, session.Identity.ID)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already answered the request.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	metrics.SessionStreamsActive.Inc()
	defer metrics.SessionStreamsActive.Dec()

	// Reads only detect the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	log := h.log.With().Str("user_id", session.Identity.ID).Str("session_id", session.ID).Logger()
	log.Debug().Msg("event stream opened")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind == domain.SessionSignedOut && h.stillSignedIn(ctx, token) {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("event stream write failed")
				return nil
			}
			if ev.Kind == domain.SessionSignedOut {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"))
				return nil
			}
		}
	}
}

func (h *AuthHandler) stillSignedIn(ctx context.Context, token string) bool {
	_, err := h.accounts.Session(ctx, token)
	if err == nil {
		return true
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		h.log.Warn().Err(err).Msg("session re-check failed, keeping stream open")
		return true
	}
	return false
}

func signInResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		return "email_not_confirmed"
	case errors.Is(err, domain.ErrAccountInactive):
		return "inactive"
	default:
		return "error"
	}
}
