package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"jobs":    h.Jobs.CountByStatus(c.Request().Context()),
		"journal": h.Journal != nil,
	})
}
