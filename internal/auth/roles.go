package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tweet-triage/internal/domain"
	apperrors "github.com/spec-kit/tweet-triage/pkg/util/errorutil"
)

// RequireRole ensures the agent principal has one of the allowed roles. With
// no roles listed it only requires authentication.
func RequireRole(allowed ...domain.AgentRole) fiber.Handler {
	allowedSet := make(map[domain.AgentRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("agent required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Agent.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
