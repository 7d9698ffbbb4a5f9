package observation

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fhirlite/server/internal/platform/db"
	"github.com/fhirlite/server/internal/platform/fhir"
	"github.com/fhirlite/server/pkg/pagination"
)

type Handler struct {
	svc     *Service
	baseURL string
}

func NewHandler(svc *Service, baseURL string) *Handler {
	return &Handler{svc: svc, baseURL: baseURL}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	g := e.Group("/"+ResourceType, mw...)
	for _, root := range []string{"", "/"} {
		g.POST(root, h.Create)
		g.GET(root, h.Search)
	}
	for _, item := range []string{"/:id", "/:id/"} {
		g.GET(item, h.Read)
		g.PUT(item, h.Update)
		g.DELETE(item, h.Delete)
	}
}

func (h *Handler) Create(c echo.Context) error {
	doc, err := fhir.ReadDocument(c)
	if err != nil {
		return err
	}
	o, err := h.svc.Create(c.Request().Context(), doc)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/"+o.EntityKey())
	return fhir.WriteResource(c, http.StatusCreated, o)
}

func (h *Handler) Read(c echo.Context) error {
	id := c.Param("id")
	o, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return fhir.JSON(c, http.StatusNotFound, fhir.NotFoundOutcome(ResourceType, id))
	}
	if err != nil {
		return err
	}
	return fhir.JSON(c, http.StatusOK, o.ToFHIR())
}

func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")
	doc, err := fhir.ReadDocument(c)
	if err != nil {
		return err
	}
	o, err := h.svc.Update(c.Request().Context(), id, doc)
	if errors.Is(err, db.ErrNotFound) {
		return fhir.JSON(c, http.StatusNotFound, fhir.NotFoundOutcome(ResourceType, id))
	}
	if err != nil {
		return err
	}
	return fhir.WriteResource(c, http.StatusOK, o)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Search(c echo.Context) error {
	page := pagination.FromContext(c)
	params := c.QueryParams()

	items, total, err := h.svc.Search(c.Request().Context(), params, page)
	if err != nil {
		return err
	}

	resources := make([]fhir.Resource, len(items))
	for i, o := range items {
		resources[i] = o
	}
	bundle := fhir.NewSearchBundle(resources, fhir.SearchBundleParams{
		BaseURL: h.baseURL,
		Path:    "/" + ResourceType,
		Query:   params,
		Page:    page,
		Total:   total,
	})
	return fhir.JSON(c, http.StatusOK, bundle)
}
