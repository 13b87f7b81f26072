package dashboard

import (
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard/stats", h.Stats)
	api.GET("/dashboard/appointments-data", h.AppointmentsData)
	api.GET("/dashboard/revenue-data", h.RevenueData, auth.RequireCapability(auth.CapDashboardRevenue))
	api.GET("/dashboard/recent-appointments", h.RecentAppointments)
}

func (h *Handler) Stats(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Stats(c.Request().Context(), ident)
	if err != nil {
		return err
	}
	return response.Success(c, "dashboard stats retrieved", st)
}

func (h *Handler) AppointmentsData(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	days, err := h.svc.AppointmentsData(c.Request().Context(), ident)
	if err != nil {
		return err
	}
	return response.Success(c, "appointment data retrieved", days)
}

func (h *Handler) RevenueData(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	months, err := h.svc.RevenueData(c.Request().Context(), ident)
	if err != nil {
		return err
	}
	return response.Success(c, "revenue data retrieved", months)
}

func (h *Handler) RecentAppointments(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	items, err := h.svc.RecentAppointments(c.Request().Context(), ident)
	if err != nil {
		return err
	}
	return response.Success(c, "recent appointments retrieved", items)
}
