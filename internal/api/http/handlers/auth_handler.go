package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-gateway/internal/api/dto"
	"github.com/spec-kit/incident-gateway/internal/domain"
	"github.com/spec-kit/incident-gateway/internal/service"
	apperrors "github.com/spec-kit/incident-gateway/pkg/util"
)

// AuthHandler exposes registration and login per role.
type AuthHandler struct {
	identity *service.IdentityService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(identity *service.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

// Register handles POST /auth/register/:role.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	role, ok := domain.ParseRole(c.Params("role"))
	if !ok {
		return apperrors.NewValidationError("role must be user or admin", nil)
	}
	var req dto.RegisterRequest
	if err := dto.Strict(c.Body(), &req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	principal, err := h.identity.Register(c.Context(), role, req.Name, req.Email, req.Password)
	if err != nil {
		// Duplicate registration answers 400 on this surface, keeping
		// the original API contract; the code field still says CONFLICT.
		if apperrors.IsCode(err, "CONFLICT") {
			domainErr := apperrors.ToDomainError(err)
			domainErr.HTTPStatus = http.StatusBadRequest
			return domainErr
		}
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{"principal": dto.NewPrincipalResponse(principal)},
	})
}

// Login handles POST /auth/login/:role.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	role, ok := domain.ParseRole(c.Params("role"))
	if !ok {
		return apperrors.NewValidationError("role must be user or admin", nil)
	}
	var req dto.LoginRequest
	if err := dto.Strict(c.Body(), &req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	principal, token, exp, err := h.identity.Login(c.Context(), role, req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{
			Token:     token,
			ExpiresAt: exp,
			Principal: dto.NewPrincipalResponse(principal),
		},
	})
}
