package dto

import (
	"time"

	"github.com/spec-kit/incident-gateway/internal/domain"
)

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PrincipalResponse is the public view of an account.
type PrincipalResponse struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// AuthResponse standard response for login.
type AuthResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Principal PrincipalResponse `json:"principal"`
}

// NewPrincipalResponse maps the domain model.
func NewPrincipalResponse(p *domain.Principal) PrincipalResponse {
	return PrincipalResponse{ID: p.ID, Name: p.Name, Email: p.Email, Role: p.Role}
}
