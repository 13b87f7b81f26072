package patient

import (
	"github.com/labstack/echo/v4"

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
	read := auth.RequireCapability(auth.CapPatientRead)
	write := auth.RequireCapability(auth.CapPatientWrite)

	api.POST("/patients", h.Create, write)
	api.GET("/patients", h.List, read)
	api.GET("/patients/:id", h.Get, read)
	api.PUT("/patients/:id", h.Update, write)
	api.DELETE("/patients/:id", h.Delete, auth.RequireCapability(auth.CapPatientDelete))
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	ident, err := auth.RequireIdentity(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Create(c.Request().Context(), ident.ID, req)
	if err != nil {
		return err
	}
	return response.Created(c, "patient created", p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("search"), pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return response.Success(c, "patients retrieved", pagination.NewPage(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return response.Success(c, "patient retrieved", p)
}

func (h *Handler) Update(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := h.svc.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return response.Updated(c, "patient updated", p)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return response.Deleted(c, "patient deleted")
}
