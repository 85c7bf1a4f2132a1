package service

import (
	"context"
	"errors"
	"net"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// LoginErrorMessage turns a failed sign-in into the text shown on the login
// screen. Errors it does not recognise are shown as they are.
func LoginErrorMessage(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrInvalidCredentials):
		return domain.MsgLoginInvalid
	case errors.Is(err, domain.ErrEmailNotConfirmed):
		return domain.MsgLoginUnconfirmed
	case errors.Is(err, domain.ErrAccountInactive):
		return domain.MsgLoginInactive
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return domain.MsgLoginNetwork
	default:
		return err.Error()
	}
}
