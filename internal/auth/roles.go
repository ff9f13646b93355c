package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

// RequireOperator ensures an operator is authenticated.
func RequireOperator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeOperator || principal.Operator == nil {
			return apperrors.NewForbidden("operator required")
		}
		return c.Next()
	}
}

// RequirePrivileged ensures the operator carries the elevated-privilege flag.
func RequirePrivileged() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Operator == nil {
			return apperrors.NewForbidden("operator required")
		}
		if !principal.Operator.IsPrivileged {
			return apperrors.NewForbidden("privileged operator required")
		}
		return c.Next()
	}
}

// RequireIntegration ensures a trusted collaborator token is used.
func RequireIntegration() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeIntegration {
			return apperrors.NewForbidden("integration token required")
		}
		return c.Next()
	}
}
