package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"epos/clients/internal/models"
	"epos/clients/internal/service"
	"epos/pkg/server"
	"epos/pkg/tenancy"
)

// ClientHandler serves the tenant scoped client API.
type ClientHandler struct {
	service *service.ClientService
	logger  logrus.FieldLogger
}

func NewClientHandler(service *service.ClientService, logger logrus.FieldLogger) *ClientHandler {
	return &ClientHandler{
		service: service,
		logger:  logger,
	}
}

func (h *ClientHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/klijenti", h.ListClients)
	e.POST("/api/klijenti", h.CreateClient)
	e.GET("/api/klijenti/:id", h.GetClient)
	e.PUT("/api/klijenti/:id", h.UpdateClient)
	e.DELETE("/api/klijenti/:id", h.DeleteClient)
}

func (h *ClientHandler) ListClients(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	clients, err := h.service.List(c.Request().Context(), tenant.ID)
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, clients)
}

func (h *ClientHandler) CreateClient(c echo.Context) error {
	var req models.CreateClientRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}
	req.TenantID = tenancy.MustFromContext(c).ID

	client, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": client.ID, "status": "success"})
}

func (h *ClientHandler) GetClient(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	client, err := h.service.Get(c.Request().Context(), tenant.ID, c.Param("id"))
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, client)
}

func (h *ClientHandler) UpdateClient(c echo.Context) error {
	var req models.UpdateClientRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}
	req.TenantID = tenancy.MustFromContext(c).ID
	req.KlijentID = c.Param("id")

	if err := h.service.Update(c.Request().Context(), req); err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (h *ClientHandler) DeleteClient(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	if err := h.service.Delete(c.Request().Context(), tenant.ID, c.Param("id")); err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}
