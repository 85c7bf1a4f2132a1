package ports

import (
	"context"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// AuthService is the client-side view of the authentication backend.
type AuthService interface {
	// GetCurrentSession returns the persisted session, or nil when there is none.
	GetCurrentSession(ctx context.Context) (*domain.Session, error)
	// OnSessionChange registers cb for auth change notifications and returns a
	// function that removes it.
	OnSessionChange(cb func(domain.SessionEvent)) (unsubscribe func())
	// SignInWithPassword only reports whether the credentials were accepted;
	// the resulting session arrives through OnSessionChange.
	SignInWithPassword(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}
