package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Me returns the identity the request was authenticated as.
func Me(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	role, _ := c.Get("role").(string)
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": userID,
		"role":    role,
	})
}
