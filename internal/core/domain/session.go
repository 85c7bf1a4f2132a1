package domain

import "time"

// Session is a live credential bundle proving continued authentication.
// AccessToken is only populated on the issuing side and the client that holds
// it; it is never persisted by the backend.
type Session struct {
	ID          string    `json:"id"`
	AccessToken string    `json:"access_token,omitempty"`
	Identity    Identity  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionEventKind classifies auth change notifications.
type SessionEventKind string

const (
	SessionSignedIn       SessionEventKind = "signed_in"
	SessionSignedOut      SessionEventKind = "signed_out"
	SessionTokenRefreshed SessionEventKind = "token_refreshed"
	SessionUserUpdated    SessionEventKind = "user_updated"
)

// SessionEvent is delivered to auth change subscribers. Session is nil when
// the event leaves the subscriber without a session.
type SessionEvent struct {
	Kind    SessionEventKind `json:"kind"`
	Session *Session         `json:"session,omitempty"`
}
