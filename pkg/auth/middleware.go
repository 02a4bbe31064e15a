package auth

import (
	"strings"

	"github.com/Abraxas-365/chatflow/pkg/kernel"
	"github.com/gofiber/fiber/v2"
)

type AuthMiddleware struct {
	tokens *JWTService
}

func NewAuthMiddleware(tokens *JWTService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate requires "Authorization: Bearer <token>" and stores the caller
// in the fiber locals under kernel.AuthContextKey.
func (am *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": ErrUnauthorized().Error(),
			})
		}

		claims, err := am.tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals(string(kernel.AuthContextKey), &kernel.AuthContext{
			Subject: claims.Subject,
			Issuer:  claims.Issuer,
		})
		return c.Next()
	}
}

// GetAuthContext returns the caller set by Authenticate.
func GetAuthContext(c *fiber.Ctx) (*kernel.AuthContext, bool) {
	authContext, ok := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
	return authContext, ok && authContext.IsValid()
}
