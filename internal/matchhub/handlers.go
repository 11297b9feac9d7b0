package matchhub

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skygig/internal/apperr"
	mware "github.com/sudo-init-do/skygig/internal/middleware"
)

type Handler struct {
	Hub *Hub
}

func NewHandler(h *Hub) *Handler {
	return &Handler{Hub: h}
}

// candidate resolves whose application the request targets: the caller by
// default, or ?candidate_id= when the poster asks.
func candidate(c echo.Context, userID string) string {
	if id := c.QueryParam("candidate_id"); id != "" {
		return id
	}
	return userID
}

// Overview - seeker hub grouped by stage
func (h *Handler) Overview(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, h.Hub.Overview(userID))
}

// GetStage - stage and progress for one job
func (h *Handler) GetStage(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	it, err := h.Hub.Item(candidate(c, userID), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, it)
}

// Complete - either party marks the work done
func (h *Handler) Complete(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	stage, err := h.Hub.MarkComplete(c.Request().Context(), c.Param("id"), candidate(c, userID), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"stage": stage})
}

// UpdateProgress - progress, milestone, payment and risk flags
func (h *Handler) UpdateProgress(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var in ProgressInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	in.JobID = c.Param("id")
	in.Actor = userID
	if in.CandidateID == "" {
		in.CandidateID = userID
	}
	info, err := h.Hub.UpdateProgress(c.Request().Context(), in)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, info)
}
