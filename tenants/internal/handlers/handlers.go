package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"epos/pkg/server"
	"epos/pkg/tenancy"
	"epos/tenants/internal/models"
	"epos/tenants/internal/service"
)

// PublicPaths are served without a tenant key.
var PublicPaths = []string{"/health", "/metrics", "/api/tenant/request", "/api/admin/"}

type TenantHandler struct {
	service *service.TenantService
	logger  logrus.FieldLogger
}

func NewTenantHandler(service *service.TenantService, logger logrus.FieldLogger) *TenantHandler {
	return &TenantHandler{
		service: service,
		logger:  logger,
	}
}

func (h *TenantHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/tenant/request", h.SubmitRequest)

	admin := e.Group("/api/admin")
	admin.GET("/requests", h.ListRequests)
	admin.POST("/requests/:id/approve", h.ApproveRequest)
	admin.POST("/requests/:id/reject", h.RejectRequest)
	admin.GET("/tenants", h.ListTenants)
	admin.POST("/tenants/:id/suspend", h.SuspendTenant)

	e.GET("/api/tenant/info", h.Info)
	e.GET("/api/tenant/usage", h.Usage)
	e.POST("/api/tenant/usage", h.RecordUsage)
}

func (h *TenantHandler) SubmitRequest(c echo.Context) error {
	var req models.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}

	created, err := h.service.SubmitRequest(c.Request().Context(), req)
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"request_id": created.ID, "status": string(created.Status)})
}

func (h *TenantHandler) ListRequests(c echo.Context) error {
	requests, err := h.service.Requests(c.Request().Context())
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, requests)
}

func (h *TenantHandler) ApproveRequest(c echo.Context) error {
	decision, err := bindDecision(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}

	tenant, err := h.service.Approve(c.Request().Context(), c.Param("id"), decision.Napomene)
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"tenant_id": tenant.ID, "status": string(models.RequestStatusApproved)})
}

func (h *TenantHandler) RejectRequest(c echo.Context) error {
	decision, err := bindDecision(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}

	if err := h.service.Reject(c.Request().Context(), c.Param("id"), decision.Napomene); err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": string(models.RequestStatusRejected)})
}

func (h *TenantHandler) ListTenants(c echo.Context) error {
	tenants, err := h.service.Tenants(c.Request().Context())
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, tenants)
}

func (h *TenantHandler) SuspendTenant(c echo.Context) error {
	decision, err := bindDecision(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}

	if err := h.service.Suspend(c.Request().Context(), c.Param("id"), decision.Razlog); err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": tenancy.StatusSuspended})
}

// Info returns the caller's tenant without its key.
func (h *TenantHandler) Info(c echo.Context) error {
	return c.JSON(http.StatusOK, tenancy.MustFromContext(c))
}

func (h *TenantHandler) Usage(c echo.Context) error {
	summary, err := h.service.UsageSummary(c.Request().Context(), tenancy.MustFromContext(c).ID)
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *TenantHandler) RecordUsage(c echo.Context) error {
	var usage tenancy.Usage
	if err := c.Bind(&usage); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}

	if err := h.service.RecordUsage(c.Request().Context(), tenancy.MustFromContext(c).ID, usage); err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "recorded"})
}

// bindDecision accepts an empty body.
func bindDecision(c echo.Context) (models.Decision, error) {
	var decision models.Decision
	if c.Request().ContentLength == 0 {
		return decision, nil
	}
	err := c.Bind(&decision)
	return decision, err
}
