package ports

import (
	"context"

	"github.com/stomacrm/clinic/internal/core/domain"
)

// SessionRepository stores issued sessions until they expire or are revoked.
type SessionRepository interface {
	Save(ctx context.Context, session *domain.Session) error
	// Get returns domain.ErrSessionNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteByUser revokes every session of userID and returns the revoked IDs.
	DeleteByUser(ctx context.Context, userID string) ([]string, error)
}

// SessionPublisher broadcasts auth change notifications for a user.
type SessionPublisher interface {
	Publish(ctx context.Context, userID string, event domain.SessionEvent) error
}

// SessionSubscriber streams auth change notifications for a user until ctx
// is cancelled.
type SessionSubscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan domain.SessionEvent, error)
}
