package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/core/domain"
	"github.com/stomacrm/clinic/internal/core/ports"
)

type adminService struct {
	profiles    ports.ProfileRepository
	accounts    ports.AccountRepository
	creds       ports.CredentialManager
	recoveryKey string
	log         zerolog.Logger
}

// NewAdminService returns an AdminService implementation. An empty
// recoveryKey disables the recovery flow.
func NewAdminService(
	profiles ports.ProfileRepository,
	accounts ports.AccountRepository,
	creds ports.CredentialManager,
	recoveryKey string,
	log zerolog.Logger,
) ports.AdminService {
	return &adminService{
		profiles:    profiles,
		accounts:    accounts,
		creds:       creds,
		recoveryKey: recoveryKey,
		log:         log.With().Str("component", "admin").Logger(),
	}
}

func (s *adminService) ListUsers(ctx context.Context) ([]*domain.Profile, error) {
	return s.profiles.List(ctx)
}

// ChangeRole assigns role to userID. Demoting the last active admin is refused.
func (s *adminService) ChangeRole(ctx context.Context, userID string, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, string(role))
	}

	target, err := s.findProfile(ctx, userID)
	if err != nil {
		return err
	}
	if target.Role == role {
		return nil
	}

	if isActiveAdmin(target) {
		err = s.profiles.RetireAdmin(ctx, userID, role, true)
	} else {
		err = s.profiles.UpdateRole(ctx, userID, role)
	}
	if errors.Is(err, domain.ErrLastActiveAdmin) {
		return err
	}
	if err != nil {
		return fmt.Errorf("change role: %w", err)
	}
	s.creds.NotifyUserUpdated(ctx, userID)
	s.log.Info().Str("user_id", userID).Str("from", target.Role.String()).Str("to", role.String()).Msg("role changed")
	return nil
}

// SetActive enables or disables userID. A disabled user loses every session.
func (s *adminService) SetActive(ctx context.Context, userID string, active bool) error {
	target, err := s.findProfile(ctx, userID)
	if err != nil {
		return err
	}
	if target.IsActive == active {
		return nil
	}

	if !active && isActiveAdmin(target) {
		err = s.profiles.RetireAdmin(ctx, userID, domain.RoleAdmin, false)
	} else {
		err = s.profiles.SetActive(ctx, userID, active)
	}
	if errors.Is(err, domain.ErrLastActiveAdmin) {
		return err
	}
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if !active {
		if err := s.creds.RevokeSessions(ctx, userID); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("revoke sessions after deactivation failed")
		}
	}
	s.creds.NotifyUserUpdated(ctx, userID)
	s.log.Info().Str("user_id", userID).Bool("active", active).Msg("activation changed")
	return nil
}

// ResetPassword overwrites userID's password and signs them out everywhere.
func (s *adminService) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if userID == "" || len(newPassword) < resetPasswordMinLength {
		return domain.ErrInvalidInput
	}
	if _, err := s.accounts.FindByID(ctx, userID); err != nil {
		return err
	}

	if err := s.creds.SetPassword(ctx, userID, newPassword); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if err := s.creds.RevokeSessions(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("revoke sessions after password reset failed")
	}
	s.log.Info().Str("user_id", userID).Msg("password reset")
	return nil
}

// Recover regains administrative access with the deployment's recovery key.
func (s *adminService) Recover(ctx context.Context, in ports.RecoveryInput) (*ports.RecoveryResult, error) {
	if s.recoveryKey == "" || subtle.ConstantTimeCompare([]byte(in.Key), []byte(s.recoveryKey)) != 1 {
		s.log.Warn().Str("action", string(in.Action)).Msg("recovery attempt with invalid key")
		return nil, domain.ErrInvalidRecoveryKey
	}

	switch in.Action {
	case ports.RecoveryPromote:
		return s.promote(ctx, in.UserID)
	case ports.RecoveryCreate:
		return s.createAdmin(ctx, in)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, string(in.Action))
	}
}

func (s *adminService) promote(ctx context.Context, userID string) (*ports.RecoveryResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}

	profile, err := s.profiles.FindByIdentity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("promote: %w", err)
	}

	if profile == nil {
		account, err := s.accounts.FindByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		defaults := domain.DefaultProfile(account.Identity())
		defaults.Role = domain.RoleAdmin
		if _, err := s.profiles.UpsertByIdentity(ctx, userID, defaults); err != nil {
			return nil, fmt.Errorf("promote: %w", err)
		}
	} else {
		if err := s.profiles.UpdateRole(ctx, userID, domain.RoleAdmin); err != nil {
			return nil, fmt.Errorf("promote: %w", err)
		}
		if err := s.profiles.SetActive(ctx, userID, true); err != nil {
			return nil, fmt.Errorf("promote: %w", err)
		}
	}

	s.creds.NotifyUserUpdated(ctx, userID)
	s.log.Warn().Str("user_id", userID).Msg("user promoted to admin via recovery")
	return &ports.RecoveryResult{Message: domain.MsgRecoveryPromoted, UserID: userID}, nil
}

func (s *adminService) createAdmin(ctx context.Context, in ports.RecoveryInput) (*ports.RecoveryResult, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput)
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		name = in.Email
	}

	account, err := s.creds.CreateAccount(ctx, in.Email, in.Password, name, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.log.Warn().Str("user_id", account.ID).Msg("admin created via recovery")
	return &ports.RecoveryResult{Message: domain.MsgRecoveryCreated, UserID: account.ID}, nil
}

func (s *adminService) findProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if userID == "" {
		return nil, domain.ErrInvalidInput
	}
	p, err := s.profiles.FindByIdentity(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrUserNotFound
	}
	return p, nil
}

func isActiveAdmin(p *domain.Profile) bool {
	return p.Role == domain.RoleAdmin && p.IsActive
}
