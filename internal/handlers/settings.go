package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/auth"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/settings"
)

// SettingsHandler is the dashboard CRUD for tenant configuration, including
// the AI switch and clinic profile.
type SettingsHandler struct {
	service *settings.Service
}

func NewSettingsHandler(service *settings.Service) *SettingsHandler {
	return &SettingsHandler{service: service}
}

func (h *SettingsHandler) Register(e *echo.Echo) {
	group := e.Group("/settings")
	group.GET("", h.List)
	group.PUT("", h.Update)
}

type updateSettingsRequest struct {
	Values map[string]string `json:"values"`
}

func (h *SettingsHandler) List(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	values, err := h.service.GetAll(c.Request().Context(), tenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"values": values})
}

func (h *SettingsHandler) Update(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	var req updateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Values) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "values are required")
	}
	ctx := c.Request().Context()
	for key, value := range req.Values {
		if strings.TrimSpace(key) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "setting key must not be empty")
		}
		if err := h.service.Set(ctx, tenantID, key, value); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
