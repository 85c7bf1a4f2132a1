package ports

import (
	"context"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// AccountRepository persists credentials.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
