package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/tahakhatip2-tech/hakeem-backend/internal/appointments"
	"github.com/tahakhatip2-tech/hakeem-backend/internal/auth"
)

// AppointmentsHandler serves the booking calendar.
type AppointmentsHandler struct {
	service *appointments.Service
}

func NewAppointmentsHandler(service *appointments.Service) *AppointmentsHandler {
	return &AppointmentsHandler{service: service}
}

func (h *AppointmentsHandler) Register(e *echo.Echo) {
	group := e.Group("/appointments")
	group.GET("", h.List)
	group.GET("/slots", h.Slots)
	group.PATCH("/:id/status", h.UpdateStatus)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().Local(), nil
	}
	return time.ParseInLocation("2006-01-02", raw, time.Local)
}

func (h *AppointmentsHandler) List(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	day, err := parseDay(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	items, err := h.service.ListForDay(c.Request().Context(), tenantID, day)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}

func (h *AppointmentsHandler) Slots(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	day, err := parseDay(c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "date must be YYYY-MM-DD")
	}
	slots, err := h.service.AvailableSlots(c.Request().Context(), tenantID, day)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Format("15:04"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"date":  day.Format("2006-01-02"),
		"slots": out,
	})
}

func (h *AppointmentsHandler) UpdateStatus(c echo.Context) error {
	tenantID, err := auth.TenantIDFromContext(c)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment id is required")
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.UpdateStatus(c.Request().Context(), tenantID, id, strings.TrimSpace(req.Status)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
