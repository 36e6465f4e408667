package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"epos/expenses/internal/models"
	"epos/expenses/internal/service"
	"epos/pkg/server"
	"epos/pkg/tenancy"
)

type ExpenseHandler struct {
	service *service.ExpenseService
	logger  logrus.FieldLogger
}

func NewExpenseHandler(service *service.ExpenseService, logger logrus.FieldLogger) *ExpenseHandler {
	return &ExpenseHandler{
		service: service,
		logger:  logger,
	}
}

func (h *ExpenseHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/troskovi", h.ListExpenses)
	e.POST("/api/troskovi", h.CreateExpense)
	e.GET("/api/troskovi/statistike", h.Statistics)
	e.GET("/api/troskovi/:id", h.GetExpense)
	e.PUT("/api/troskovi/:id", h.UpdateExpense)
	e.DELETE("/api/troskovi/:id", h.DeleteExpense)
	e.GET("/api/kategorije", h.ListCategories)
}

// ListExpenses accepts the kategorija, status, datum_od and datum_do filters.
func (h *ExpenseHandler) ListExpenses(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)
	filter := models.Filter{
		Kategorija: c.QueryParam("kategorija"),
		Status:     c.QueryParam("status"),
		DatumOd:    c.QueryParam("datum_od"),
		DatumDo:    c.QueryParam("datum_do"),
	}

	expenses, err := h.service.List(c.Request().Context(), tenant.ID, filter)
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, expenses)
}

func (h *ExpenseHandler) CreateExpense(c echo.Context) error {
	var req models.CreateExpenseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}
	req.TenantID = tenancy.MustFromContext(c).ID

	expense, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": expense.ID, "status": "success"})
}

func (h *ExpenseHandler) GetExpense(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	expense, err := h.service.Get(c.Request().Context(), tenant.ID, c.Param("id"))
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, expense)
}

func (h *ExpenseHandler) UpdateExpense(c echo.Context) error {
	var req models.UpdateExpenseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Neispravan format zahtjeva"})
	}
	req.TenantID = tenancy.MustFromContext(c).ID
	req.TrosakID = c.Param("id")

	if err := h.service.Update(c.Request().Context(), req); err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (h *ExpenseHandler) DeleteExpense(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	if err := h.service.Delete(c.Request().Context(), tenant.ID, c.Param("id")); err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (h *ExpenseHandler) ListCategories(c echo.Context) error {
	categories, err := h.service.Categories(c.Request().Context())
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, categories)
}

func (h *ExpenseHandler) Statistics(c echo.Context) error {
	tenant := tenancy.MustFromContext(c)

	stats, err := h.service.Statistics(c.Request().Context(), tenant.ID, c.QueryParam("datum_od"), c.QueryParam("datum_do"))
	if err != nil {
		return server.Error(c, err, h.logger)
	}
	return c.JSON(http.StatusOK, stats)
}
