package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"epos/pkg/tenancy"
)

const unavailableMessage = "Servis nedostupan"

// Upstreams are the base URLs of the services owning the read models.
type Upstreams struct {
	Clients  string
	Invoices string
	Expenses string
}

// ProxyHandler forwards reads to the owning service and caches the answers.
type ProxyHandler struct {
	upstreams Upstreams
	http      *http.Client
	cache     Cache
	logger    logrus.FieldLogger
}

func NewProxyHandler(upstreams Upstreams, cache Cache, logger logrus.FieldLogger) *ProxyHandler {
	return &ProxyHandler{
		upstreams: Upstreams{
			Clients:  strings.TrimRight(upstreams.Clients, "/"),
			Invoices: strings.TrimRight(upstreams.Invoices, "/"),
			Expenses: strings.TrimRight(upstreams.Expenses, "/"),
		},
		http:   &http.Client{Timeout: 10 * time.Second},
		cache:  cache,
		logger: logger,
	}
}

func (h *ProxyHandler) ListClients(c echo.Context) error {
	return h.forward(c, h.upstreams.Clients, "")
}

func (h *ProxyHandler) GetClient(c echo.Context) error {
	return h.forward(c, h.upstreams.Clients, "Klijent nije pronađen")
}

func (h *ProxyHandler) ListClientInvoices(c echo.Context) error {
	return h.forward(c, h.upstreams.Invoices, "")
}

func (h *ProxyHandler) GetInvoice(c echo.Context) error {
	return h.forward(c, h.upstreams.Invoices, "Faktura nije pronađena")
}

func (h *ProxyHandler) ListExpenses(c echo.Context) error {
	return h.forward(c, h.upstreams.Expenses, "")
}

func (h *ProxyHandler) GetExpense(c echo.Context) error {
	return h.forward(c, h.upstreams.Expenses, "Trošak nije pronađen")
}

func (h *ProxyHandler) ListCategories(c echo.Context) error {
	return h.forward(c, h.upstreams.Expenses, "")
}

func (h *ProxyHandler) Statistics(c echo.Context) error {
	return h.forward(c, h.upstreams.Expenses, "")
}

// forward issues the same GET against baseURL. A 404 is answered with
// notFound when it is set, otherwise the upstream body is passed through.
func (h *ProxyHandler) forward(c echo.Context, baseURL, notFound string) error {
	ctx := c.Request().Context()
	tenant := tenancy.MustFromContext(c)
	uri := c.Request().URL.RequestURI()

	if body, ok := h.cache.Get(ctx, tenant.ID, uri); ok {
		c.Response().Header().Set("X-Cache", "HIT")
		return c.JSONBlob(http.StatusOK, body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+uri, nil)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}
	req.Header.Set(tenancy.HeaderAPIKey, c.Request().Header.Get(tenancy.HeaderAPIKey))
	req.Header.Set("Accept", "application/json")

	log := h.logger.WithFields(logrus.Fields{
		"upstream":  baseURL,
		"uri":       uri,
		"tenant_id": tenant.ID,
	})

	resp, err := h.http.Do(req)
	if err != nil {
		log.WithError(err).Warn("Upstream unreachable")
		return errorJSON(c, http.StatusServiceUnavailable, unavailableMessage)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && notFound != "" {
		return errorJSON(c, http.StatusNotFound, notFound)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("Upstream response truncated")
		return errorJSON(c, http.StatusServiceUnavailable, unavailableMessage)
	}

	if resp.StatusCode == http.StatusOK {
		h.cache.Set(ctx, tenant.ID, uri, body)
	}
	return c.JSONBlob(resp.StatusCode, body)
}
