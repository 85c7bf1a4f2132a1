package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

const defaultTokenTTL = 24 * time.Hour

// accessClaims is the payload of an access token. sid points at the session
// record that must still exist for the token to be accepted.
type accessClaims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email"`
	FullName  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AuthService implements registration, sign-in and the session lifecycle.
type AuthService struct {
	accounts  ports.AccountRepository
	profiles  ports.ProfileRepository
	sessions  ports.SessionRepository
	events    ports.SessionPublisher
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewAuthService(
	accounts ports.AccountRepository,
	profiles ports.ProfileRepository,
	sessions ports.SessionRepository,
	events ports.SessionPublisher,
	jwtSecret string,
	tokenTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthService{
		accounts:  accounts,
		profiles:  profiles,
		sessions:  sessions,
		events:    events,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
		log:       log.With().Str("component", "auth").Logger(),
	}
}

// SignUp stores a confirmed account. No profile is written here; the client
// provisions one on first sign-in.
func (s *AuthService) SignUp(ctx context.Context, email, password, fullName string) (*domain.Account, error) {
	if err := CheckPasswordStrength(password); err != nil {
		return nil, err
	}
	return s.CreateAccount(ctx, email, password, fullName, domain.RoleNone)
}

// CreateAccount hashes the password and stores the account. A non-empty role
// also writes an active profile carrying that role.
func (s *AuthService) CreateAccount(ctx context.Context, email, password, fullName string, role domain.Role) (*domain.Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	account, err := s.accounts.Create(ctx, &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		PasswordHash: string(hash),
		Confirmed:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	if role != domain.RoleNone {
		profile := domain.DefaultProfile(account.Identity())
		profile.Role = role
		if _, err := s.profiles.UpsertByIdentity(ctx, account.ID, profile); err != nil {
			return nil, fmt.Errorf("create account: provision profile: %w", err)
		}
	}

	s.log.Info().Str("user_id", account.ID).Str("role", role.String()).Msg("account created")
	return account, nil
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !account.Confirmed {
		return nil, domain.ErrEmailNotConfirmed
	}

	profile, err := s.profiles.FindByIdentity(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("sign in: load profile: %w", err)
	}
	if profile != nil && !profile.IsActive {
		return nil, domain.ErrAccountInactive
	}

	now := s.now().UTC()
	session := &domain.Session{
		ID:        uuid.NewString(),
		Identity:  account.Identity(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("sign in: save session: %w", err)
	}

	token, err := s.generateToken(session)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, account.ID, domain.SessionEvent{Kind: domain.SessionSignedIn, Session: session})
	s.log.Info().Str("user_id", account.ID).Str("session_id", session.ID).Msg("signed in")

	issued := *session
	issued.AccessToken = token
	return &issued, nil
}

// Session validates the token and the session record it points at.
func (s *AuthService) Session(ctx context.Context, accessToken string) (*domain.Session, error) {
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Identity.ID != claims.Subject || session.Expired(s.now()) {
		return nil, domain.ErrSessionNotFound
	}

	session.AccessToken = accessToken
	return session, nil
}

// Refresh extends the session behind accessToken and issues a new token for it.
func (s *AuthService) Refresh(ctx context.Context, accessToken string) (*domain.Session, error) {
	session, err := s.Session(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session.AccessToken = ""
	session.IssuedAt = now
	session.ExpiresAt = now.Add(s.tokenTTL)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("refresh: save session: %w", err)
	}

	token, err := s.generateToken(session)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, session.Identity.ID, domain.SessionEvent{Kind: domain.SessionTokenRefreshed, Session: session})

	refreshed := *session
	refreshed.AccessToken = token
	return &refreshed, nil
}

func (s *AuthService) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.publish(ctx, claims.Subject, domain.SessionEvent{Kind: domain.SessionSignedOut})
	s.log.Info().Str("user_id", claims.Subject).Str("session_id", claims.SessionID).Msg("signed out")
	return nil
}

func (s *AuthService) SetPassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.accounts.UpdatePassword(ctx, userID, string(hash))
}

// RevokeSessions ends every session of userID and tells its clients.
func (s *AuthService) RevokeSessions(ctx context.Context, userID string) error {
	revoked, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	if len(revoked) > 0 {
		s.publish(ctx, userID, domain.SessionEvent{Kind: domain.SessionSignedOut})
	}
	s.log.Info().Str("user_id", userID).Int("count", len(revoked)).Msg("sessions revoked")
	return nil
}

func (s *AuthService) NotifyUserUpdated(ctx context.Context, userID string) {
	s.publish(ctx, userID, domain.SessionEvent{Kind: domain.SessionUserUpdated})
}

// publish is best effort: a lost notification only delays a client.
func (s *AuthService) publish(ctx context.Context, userID string, ev domain.SessionEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, userID, ev); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("kind", string(ev.Kind)).Msg("publish session event failed")
	}
}

func (s *AuthService) generateToken(session *domain.Session) (string, error) {
	claims := accessClaims{
		SessionID: session.ID,
		Email:     session.Identity.Email,
		FullName:  session.Identity.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Identity.ID,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.jwtSecret)
}

func (s *AuthService) parseToken(accessToken string) (*accessClaims, error) {
	if accessToken == "" {
		return nil, domain.ErrSessionNotFound
	}
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || claims.SessionID == "" || claims.Subject == "" {
		return nil, domain.ErrSessionNotFound
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
