package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/auth"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/chatlog"
)

// ChatsHandler serves the conversation log to the dashboard inbox.
type ChatsHandler struct {
	chats *chatlog.Store
}

func NewChatsHandler(chats *chatlog.Store) *ChatsHandler {
	return &ChatsHandler{chats: chats}
}

func (h *ChatsHandler) Register(e *echo.Echo) {
	group := e.Group("/chats")
	group.GET("", h.List)
	group.GET("/:id/messages", h.Messages)
	group.POST("/:id/read", h.MarkRead)
}

func (h *ChatsHandler) List(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	items, err := h.chats.ListChats(c.Request().Context(), tenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

func (h *ChatsHandler) Messages(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	chatID := strings.TrimSpace(c.Param("id"))
	if chatID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat id is required")
	}
	limit := 50
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}
	items, err := h.chats.ListMessages(c.Request().Context(), tenantID, chatID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

func (h *ChatsHandler) MarkRead(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	chatID := strings.TrimSpace(c.Param("id"))
	if chatID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat id is required")
	}
	if err := h.chats.MarkRead(c.Request().Context(), tenantID, chatID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
