package appointment

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/response"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.Create, auth.RequireCapability(auth.CapAppointmentCreate))
	api.GET("/appointments", h.List)
	api.GET("/appointments/slots", h.Slots)
	api.GET("/appointments/:id", h.Get)
	api.PATCH("/appointments/:id/status", h.UpdateStatus, auth.RequireCapability(auth.CapAppointmentStatus))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput("invalid appointment id")
	}
	return id, nil
}

func parseOptionalUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, apperr.InvalidInput("invalid %s", name)
	}
	return &id, nil
}

func (h *Handler) Create(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.Create(c.Request().Context(), ident, req)
	if err != nil {
		return err
	}
	return response.Created(c, "appointment created", a)
}

func (h *Handler) List(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	f := Filter{Status: c.QueryParam("status"), Date: c.QueryParam("date")}
	if f.DoctorID, err = parseOptionalUUID(c, "doctor_id"); err != nil {
		return err
	}
	if f.PatientID, err = parseOptionalUUID(c, "patient_id"); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), ident, f, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return response.Success(c, "appointments retrieved", pagination.NewPage(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), ident, id)
	if err != nil {
		return err
	}
	return response.Success(c, "appointment retrieved", a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), ident, id, req.Status)
	if err != nil {
		return err
	}
	return response.Updated(c, "appointment status updated", a)
}

// Slots lists a doctor's bookable times on a date.
func (h *Handler) Slots(c echo.Context) error {
	doctorID, err := parseOptionalUUID(c, "doctor_id")
	if err != nil {
		return err
	}
	if doctorID == nil {
		return apperr.InvalidInput("doctor_id is required")
	}
	day, err := h.svc.AvailableSlots(c.Request().Context(), *doctorID, c.QueryParam("date"))
	if err != nil {
		return err
	}
	return response.Success(c, "slots retrieved", day)
}
