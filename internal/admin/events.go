package admin

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skygig/internal/db"
	"github.com/sudo-init-do/skygig/internal/marketplace"
)

// JobCounter is what the stats endpoint needs from the job store.
type JobCounter interface {
	CountByStatus(ctx context.Context) map[marketplace.JobStatus]int
}

// Handler serves the admin-only inspection routes. Journal may be nil when
// journaling is disabled.
type Handler struct {
	Journal db.Journal
	Jobs    JobCounter
}

func NewHandler(j db.Journal, jobs JobCounter) *Handler {
	return &Handler{Journal: j, Jobs: jobs}
}

// GET /admin/events
func (h *Handler) Events(c echo.Context) error {
	return h.recent(c, "")
}

// GET /admin/events/:id
func (h *Handler) AggregateEvents(c echo.Context) error {
	return h.recent(c, c.Param("id"))
}

func (h *Handler) recent(c echo.Context, aggregateID string) error {
	if h.Journal == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "event journal is disabled"})
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}
	recs, err := h.Journal.Recent(c.Request().Context(), aggregateID, limit)
	if err != nil {
		log.Printf("[admin][ERROR] journal read %q: %v", aggregateID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read journal"})
	}
	return c.JSON(http.StatusOK, echo.Map{"events": recs})
}
