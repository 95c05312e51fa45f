package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/auth"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/session"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/transport"
)

// WhatsAppHandler exposes the session lifecycle and outbound sending to the
// dashboard.
type WhatsAppHandler struct {
	sessions *session.Manager
}

func NewWhatsAppHandler(sessions *session.Manager) *WhatsAppHandler {
	return &WhatsAppHandler{sessions: sessions}
}

func (h *WhatsAppHandler) Register(e *echo.Echo) {
	group := e.Group("/whatsapp")
	group.POST("/connect", h.Connect)
	group.GET("/status", h.Status)
	group.POST("/logout", h.Logout)
	group.POST("/send", h.Send)
}

type sendRequest struct {
	Phone    string `json:"phone"`
	Text     string `json:"text"`
	Media    string `json:"media,omitempty"`
	Kind     string `json:"kind,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func (h *WhatsAppHandler) Connect(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Start(c.Request().Context(), tenantID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, h.sessions.Status(tenantID))
}

func (h *WhatsAppHandler) Status(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.sessions.Status(tenantID))
}

func (h *WhatsAppHandler) Logout(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Logout(c.Request().Context(), tenantID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *WhatsAppHandler) Send(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phone is required")
	}

	msg := transport.Message{Text: strings.TrimSpace(req.Text)}
	if req.Media != "" {
		blob, err := base64.StdEncoding.DecodeString(req.Media)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "media must be base64")
		}
		kind := transport.MediaKind(strings.TrimSpace(req.Kind))
		if kind != transport.MediaImage && kind != transport.MediaDocument {
			return echo.NewHTTPError(http.StatusBadRequest, "kind must be image or document")
		}
		msg.Media = blob
		msg.MediaKind = kind
		msg.MimeType = strings.TrimSpace(req.MimeType)
		msg.Filename = strings.TrimSpace(req.Filename)
	} else if msg.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text or media is required")
	}

	logged, err := h.sessions.SendMedia(c.Request().Context(), tenantID, phone, msg)
	if err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			return echo.NewHTTPError(http.StatusConflict, "session not connected")
		}
		if errors.Is(err, session.ErrNotAddressable) {
			return echo.NewHTTPError(http.StatusBadRequest, "target is not an individual chat")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, logged)
}
