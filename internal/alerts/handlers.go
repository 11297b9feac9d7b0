package alerts

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skygig/internal/apperr"
	mware "github.com/sudo-init-do/skygig/internal/middleware"
)

type Handler struct {
	Center *Center
}

func NewHandler(c *Center) *Handler {
	return &Handler{Center: c}
}

// ListNotifications returns current user's notifications, newest first
func (h *Handler) ListNotifications(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	f := Filter{Type: NotificationType(c.QueryParam("type"))}
	if f.Type != "" && !f.Type.valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown notification type"})
	}
	if v := c.QueryParam("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid unread flag"})
		}
		f.UnreadOnly = unread
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": h.Center.List(c.Request().Context(), userID, f)})
}

// UnreadCount - bell badge
func (h *Handler) UnreadCount(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": h.Center.UnreadCount(c.Request().Context(), userID)})
}

// MarkNotificationRead marks specific notification as read
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	n, err := h.Center.MarkRead(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, n)
}

// MarkAllRead marks every notification of the caller as read
func (h *Handler) MarkAllRead(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{"updated": h.Center.MarkAllRead(c.Request().Context(), userID)})
}

// ClearRead deletes read notifications. Requires ?confirm=true.
func (h *Handler) ClearRead(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if confirm, _ := strconv.ParseBool(c.QueryParam("confirm")); !confirm {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "clearing read notifications requires confirm=true"})
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": h.Center.ClearRead(c.Request().Context(), userID)})
}
