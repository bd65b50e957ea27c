package service

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/incident-gateway/internal/auth"
	"github.com/spec-kit/incident-gateway/internal/config"
	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/internal/repository"
	apperrors "github.com/spec-kit/incident-gateway/pkg/util"
)

// IdentityService coordinates registration and login flows.
type IdentityService struct {
	principals repository.PrincipalRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewIdentityService builds the service.
func NewIdentityService(cfg config.Config, principals repository.PrincipalRepository) *IdentityService {
	return &IdentityService{
		principals: principals,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Register creates a new account under the given role. Duplicate emails
// conflict per role-table, not globally.
func (s *IdentityService) Register(ctx context.Context, role domain.Role, name, email, password string) (*domain.Principal, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return nil, apperrors.NewValidationError("name, email, password required", nil)
	}

	if _, err := s.principals.GetByEmail(ctx, role, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email, "role": role})
	} else if err != pgx.ErrNoRows {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	principal := &domain.Principal{
		Role:         role,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.principals.Create(ctx, principal); err != nil {
		return nil, err
	}
	return principal, nil
}

// Login verifies credentials and issues a session token. Failures never
// reveal whether the email exists.
func (s *IdentityService) Login(ctx context.Context, role domain.Role, email, password string) (*domain.Principal, string, time.Time, error) {
	invalid := apperrors.NewUnauthorized("invalid email or password")

	principal, err := s.principals.GetByEmail(ctx, role, email)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", time.Time{}, invalid
		}
		return nil, "", time.Time{}, err
	}
	if err := auth.ComparePassword(principal.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, invalid
	}

	token, exp, err := s.tokenMgr.GenerateToken(principal)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return principal, token, exp, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *IdentityService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
