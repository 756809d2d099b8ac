package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/infra/logger"
	"github.com/arklim/abuse-guard/internal/infra/security"
)

var (
	// ErrInvalidCredentials indicates the provided username or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginLocked indicates the identifier reached the failure threshold and lockout is enforced.
	ErrLoginLocked = errors.New("too many failed login attempts")
	// ErrLoginDisabled indicates no admin credentials are configured.
	ErrLoginDisabled = errors.New("admin login is not configured")
)

// AdminCredentials is the single administrator account guarding the backend.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// PasswordVerifier checks a password against an encoded hash.
type PasswordVerifier func(password, encoded string) (bool, error)

// AdminLoginService verifies admin credentials and drives progressive backoff.
type AdminLoginService struct {
	guard          *Guard
	creds          AdminCredentials
	verify         PasswordVerifier
	enforceLockout bool
	logger         *zap.Logger
}

// NewAdminLoginService constructs the admin login flow.
func NewAdminLoginService(guard *Guard, creds AdminCredentials, log *zap.Logger) *AdminLoginService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminLoginService{
		guard:  guard,
		creds:  creds,
		verify: security.VerifyPassword,
		logger: log,
	}
}

// WithVerifier replaces the password verifier (primarily for testing).
func (s *AdminLoginService) WithVerifier(v PasswordVerifier) *AdminLoginService {
	if v != nil {
		s.verify = v
	}
	return s
}

// WithEnforceLockout rejects locked identifiers before credentials are checked.
// Disabled by default: failures are only slowed down, never hard-blocked.
func (s *AdminLoginService) WithEnforceLockout(enforce bool) *AdminLoginService {
	s.enforceLockout = enforce
	return s
}

// Login verifies the credentials presented by identifier. On failure the call
// waits for the backoff delay before returning ErrInvalidCredentials.
func (s *AdminLoginService) Login(ctx context.Context, identifier, username, password string) (domain.BackoffResult, error) {
	if s.creds.Username == "" || s.creds.PasswordHash == "" {
		return domain.BackoffResult{}, ErrLoginDisabled
	}

	if s.enforceLockout && s.guard.IsLocked(identifier) {
		return domain.BackoffResult{
			Attempts: s.guard.FailureCount(identifier),
			Locked:   true,
		}, ErrLoginLocked
	}

	ok, err := s.verify(password, s.creds.PasswordHash)
	if err != nil {
		return domain.BackoffResult{}, fmt.Errorf("verify password: %w", err)
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.creds.Username)) == 1

	if !ok || !userOK {
		res := s.guard.RecordFailure(identifier)
		s.logger.Warn("admin login failed",
			zap.String("identifier", logger.MaskIP(identifier)),
			zap.Int("attempts", res.Attempts),
			zap.Duration("delay", res.Delay),
			zap.Bool("locked", res.Locked),
		)
		if err := s.guard.WaitBackoff(ctx, res.Delay); err != nil {
			return res, fmt.Errorf("wait backoff: %w", err)
		}
		return res, ErrInvalidCredentials
	}

	s.guard.ResetFailures(identifier)
	s.logger.Info("admin login succeeded", zap.String("identifier", logger.MaskIP(identifier)))
	return domain.BackoffResult{}, nil
}
