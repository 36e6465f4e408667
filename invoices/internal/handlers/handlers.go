package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"epos/invoices/internal/models"
	"epos/invoices/internal/service"
	"epos/pkg/server"
	"epos/pkg/tenancy"
)

// InvoiceHandler serves the tenant scoped invoice API.
type InvoiceHandler struct {
	service *service.InvoiceService
	logger  logrus.FieldLogger
}

func NewInvoiceHandler(service *service.InvoiceService, logger logrus.FieldLogger) *InvoiceHandler {
	return &InvoiceHandler{
		service: service,
		logger:  logger,
	}
}

func (h *InvoiceHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/fakture", h.ListInvoices)
	e.POST("/api/fakture", h.CreateInvoice)
	e.GET("/api/fakture/:id", h.GetInvoice)
	e.PUT("/api/fakture/:id", h.UpdateInvoice)
	e.DELETE("/api/fakture/:id", h.DeleteInvoice)
	e.GET("/api/klijenti/:id/fakture", h.ListClientInvoices)
}

func (h *InvoiceHandler) ListInvoices(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	invoices, err := h.service.List(c.Request().Context(), tenant.ID)
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, invoices)
}

func (h *InvoiceHandler) ListClientInvoices(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	invoices, err := h.service.ListByClient(c.Request().Context(), tenant.ID, c.Param("id"))
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, invoices)
}

func (h *InvoiceHandler) CreateInvoice(c echo.Context) error {
	var req models.CreateInvoiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}
	req.TenantID = tenancy.MustFromContext(c).ID

	invoice, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": invoice.ID, "status": "success"})
}

func (h *InvoiceHandler) GetInvoice(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	invoice, err := h.service.Get(c.Request().Context(), tenant.ID, c.Param("id"))
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, invoice)
}

func (h *InvoiceHandler) UpdateInvoice(c echo.Context) error {
	var req models.UpdateInvoiceRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}
	req.TenantID = tenancy.MustFromContext(c).ID
	req.FakturaID = c.Param("id")

	if err := h.service.Update(c.Request().Context(), req); err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (h *InvoiceHandler) DeleteInvoice(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	if err := h.service.Delete(c.Request().Context(), tenant.ID, c.Param("id")); err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}
