package domain

import "time"

// Identity is the authenticated user as reported by the auth service.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// Profile is the application-level record of a user. It is keyed 1:1 by the
// identity ID and is the only trusted source of the user's role.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// DefaultProfile builds the record provisioned for an identity that has no
// profile yet: reception role, active, display name falling back to email.
func DefaultProfile(id Identity) Profile {
	name := id.FullName
	if name == "" {
		name = id.Email
	}
	return Profile{
		ID:       id.ID,
		FullName: name,
		Email:    id.Email,
		Role:     RoleReception,
		IsActive: true,
	}
}

// Account holds the credentials behind an identity.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name,omitempty"`
	PasswordHash string    `json:"-"`
	Confirmed    bool      `json:"confirmed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity returns the public identity of the account.
func (a *Account) Identity() Identity {
	return Identity{ID: a.ID, Email: a.Email, FullName: a.FullName}
}
