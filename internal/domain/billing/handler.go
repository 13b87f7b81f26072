package billing

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
	read := auth.RequireCapability(auth.CapInvoiceRead)
	write := auth.RequireCapability(auth.CapInvoiceWrite)

	api.POST("/invoices", h.Create, write)
	api.GET("/invoices", h.List, read)
	api.GET("/invoices/:id", h.Get, read)
	api.PATCH("/invoices/:id/pay", h.Pay, write)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput("invalid invoice id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	inv, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return response.Created(c, "invoice created", inv)
}

func (h *Handler) List(c echo.Context) error {
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	f := Filter{Status: c.QueryParam("status")}
	if f.PatientID, err = optionalUUID(c.QueryParam("patient_id"), "patient_id"); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), ident, f, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return response.Success(c, "invoices retrieved", pagination.NewPage(items, total, pg))
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
	inv, err := h.svc.Get(c.Request().Context(), ident, id)
	if err != nil {
		return err
	}
	return response.Success(c, "invoice retrieved", inv)
}

func (h *Handler) Pay(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req PayRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	inv, err := h.svc.Pay(c.Request().Context(), id, req)
	if err != nil {
		return err
	}
	return response.Updated(c, "invoice paid", inv)
}
