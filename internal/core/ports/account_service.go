package ports

import (
	"context"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// AccountService is the backend side of sign-up, sign-in and session checks.
type AccountService interface {
	SignUp(ctx context.Context, email, password, fullName string) (*domain.Account, error)
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	// Session validates an access token against the live session record.
	Session(ctx context.Context, accessToken string) (*domain.Session, error)
	Refresh(ctx context.Context, accessToken string) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// CredentialManager is what administrative flows need from the account side.
type CredentialManager interface {
	CreateAccount(ctx context.Context, email, password, fullName string, role domain.Role) (*domain.Account, error)
	SetPassword(ctx context.Context, userID, password string) error
	RevokeSessions(ctx context.Context, userID string) error
	NotifyUserUpdated(ctx context.Context, userID string)
}
