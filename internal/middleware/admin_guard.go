package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skygig/internal/auth"
)

// AdminGuard restricts the /admin routes to admins.
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if role, _ := c.Get("role").(string); role != auth.RoleAdmin {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access only"})
		}
		return next(c)
	}
}
