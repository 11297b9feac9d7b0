package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skygig/internal/auth"
)

// wsRouteSuffix marks the routes that browsers open as websockets; they
// cannot set headers, so only these accept ?token=.
const wsRouteSuffix = "/ws"

// JWTMiddleware authenticates the bearer token and stores user_id and role
// on the context. Websocket routes may pass the token as ?token= instead.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var tokenStr string
			if strings.HasSuffix(c.Path(), wsRouteSuffix) {
				tokenStr = c.QueryParam("token")
			}
			if h := c.Request().Header.Get("Authorization"); h != "" {
				const prefix = "Bearer "
				if !strings.HasPrefix(h, prefix) {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid Authorization format"})
				}
				tokenStr = h[len(prefix):]
			}
			if tokenStr == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing Authorization header"})
			}

			claims, err := auth.ParseToken(secret, tokenStr)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
			}
			c.Set("user_id", claims.UserID)
			c.Set("role", claims.Role)
			return next(c)
		}
	}
}

// UserID returns the authenticated caller, if any.
func UserID(c echo.Context) (string, bool) {
	id, ok := c.Get("user_id").(string)
	return id, ok && id != ""
}
