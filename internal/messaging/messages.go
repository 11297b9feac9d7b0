package messaging

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skygig/internal/apperr"
	mware "github.com/sudo-init-do/skygig/internal/middleware"
)

type Handler struct {
	Store *Store
}

func NewHandler(s *Store) *Handler {
	return &Handler{Store: s}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// OpenConversation - open (or fetch) the thread with another user about a job
func (h *Handler) OpenConversation(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req struct {
		JobID         string `json:"job_id"`
		ParticipantID string `json:"participant_id"`
	}
	if err := c.Bind(&req); err != nil || req.JobID == "" || req.ParticipantID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "job_id and participant_id are required"})
	}
	conv, err := h.Store.OpenOrGet(c.Request().Context(), req.JobID, userID, req.ParticipantID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// ListConversations - caller's threads, pinned first
func (h *Handler) ListConversations(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"conversations": h.Store.List(c.Request().Context(), userID)})
}

// UnreadCount - total unread messages for the caller
func (h *Handler) UnreadCount(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": h.Store.UnreadTotal(c.Request().Context(), userID)})
}

// GetConversation - one thread with the caller's unread count
func (h *Handler) GetConversation(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	conv, err := h.Store.Get(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// SendMessage - either participant posts to the thread
func (h *Handler) SendMessage(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}
	m, err := h.Store.Send(c.Request().Context(), c.Param("id"), userID, body.Text)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// ListMessages - get the thread, optionally only after ?since=<seq>
func (h *Handler) ListMessages(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var since int64
	if s := c.QueryParam("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid since, use a message seq"})
		}
		since = v
	}
	msgs, err := h.Store.Messages(c.Request().Context(), c.Param("id"), userID, since)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// MarkRead - caller has seen everything in the thread
func (h *Handler) MarkRead(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	conv, err := h.Store.MarkRead(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// MarkDelivered - caller's client received pending messages
func (h *Handler) MarkDelivered(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	n, err := h.Store.MarkDelivered(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"delivered": n})
}

// TogglePin - pin or unpin the thread for the caller
func (h *Handler) TogglePin(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	pinned, err := h.Store.TogglePin(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"pinned": pinned})
}

// CloseConversation - stop further messages
func (h *Handler) CloseConversation(c echo.Context) error {
	userID, ok := mware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	conv, err := h.Store.Close(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Respond(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}
