package ports

import (
	"context"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// ProfileStore reads and provisions profile records keyed by identity ID.
type ProfileStore interface {
	// FindByIdentity returns (nil, nil) when no profile exists for id.
	FindByIdentity(ctx context.Context, id string) (*domain.Profile, error)
	// UpsertByIdentity inserts defaults for id, or overwrites the existing
	// record on conflict, and returns the stored record.
	UpsertByIdentity(ctx context.Context, id string, defaults domain.Profile) (*domain.Profile, error)
}

// ProfileRepository is the backend persistence of profiles, including the
// administrative mutations.
type ProfileRepository interface {
	ProfileStore
	List(ctx context.Context) ([]*domain.Profile, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) error
	SetActive(ctx context.Context, id string, active bool) error
	// RetireAdmin stores role and active for id, an active admin, only while
	// another active admin exists. The check and the write are atomic. It
	// returns domain.ErrLastActiveAdmin when id holds the last seat.
	RetireAdmin(ctx context.Context, id string, role domain.Role, active bool) error
}
