package ports

import (
	"context"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// RecoveryAction selects what an admin recovery request does.
type RecoveryAction string

const (
	RecoveryPromote RecoveryAction = "promote"
	RecoveryCreate  RecoveryAction = "create"
)

// RecoveryInput carries an admin recovery request. UserID is required for
// promote; Email and Password for create.
type RecoveryInput struct {
	Key      string
	Action   RecoveryAction
	UserID   string
	Email    string
	Password string
	FullName string
}

// RecoveryResult is returned by a successful recovery.
type RecoveryResult struct {
	Message string
	UserID  string
}

// AdminService covers user management and the privileged recovery flows.
type AdminService interface {
	ListUsers(ctx context.Context) ([]*domain.Profile, error)
	ChangeRole(ctx context.Context, userID string, role domain.Role) error
	SetActive(ctx context.Context, userID string, active bool) error
	ResetPassword(ctx context.Context, userID, newPassword string) error
	Recover(ctx context.Context, in RecoveryInput) (*RecoveryResult, error)
}
