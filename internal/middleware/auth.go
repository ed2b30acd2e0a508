package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/mayanpathak/Code-Collab/internal/auth"
	"github.com/mayanpathak/Code-Collab/internal/project"
)

type ProjectResolver interface {
	Get(ctx context.Context, id string) (*project.Project, error)
}

// Auth authenticates the session token and, on project-scoped routes, loads
// the project record and enforces membership. Claims and the project are left
// in Locals for the handlers.
func Auth(v *auth.Validator, projects ProjectResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.TokenFromRequest(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": "error", "message": "Not authorized, no token provided",
			})
		}
		claims, err := v.Validate(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": "error", "message": "Invalid or expired token",
			})
		}
		c.Locals("claims", claims)

		if projectID := c.Params("projectId"); projectID != "" {
			p, err := projects.Get(c.Context(), projectID)
			if err != nil {
				if errors.Is(err, project.ErrNotFound) {
					return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
						"status": "error", "message": "Project not found",
					})
				}
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"status": "error", "message": "Error validating project access",
				})
			}
			if !p.HasMember(claims.UserID) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"status": "error", "message": "You do not have access to this project",
				})
			}
			c.Locals("project", p)
		}
		return c.Next()
	}
}
