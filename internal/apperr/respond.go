package apperr

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Respond writes err as {"error": ...} with its mapped status. Unexpected
// errors are logged and hidden from the caller.
func Respond(c echo.Context, err error) error {
	if !IsDomain(err) {
		log.Printf("[api][ERROR] %s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(HTTPStatus(err), echo.Map{"error": err.Error()})
}
