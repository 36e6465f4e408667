package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type BrokerState interface {
	IsConnected() bool
}

type PendingCounter interface {
	Pending() int
}

// SystemHandler answers the unauthenticated health and status probes.
type SystemHandler struct {
	broker  BrokerState
	pending PendingCounter
	cache   Cache
	now     func() time.Time
}

func NewSystemHandler(broker BrokerState, pending PendingCounter, cache Cache) *SystemHandler {
	return &SystemHandler{
		broker:  broker,
		pending: pending,
		cache:   cache,
		now:     time.Now,
	}
}

func (h *SystemHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":             "ok",
		"service":            "api-gateway",
		"rabbitmq_connected": h.broker.IsConnected(),
		"redis_enabled":      h.cache.Enabled(),
	})
}

func (h *SystemHandler) Status(c echo.Context) error {
	rabbitmq := "disconnected"
	if h.broker.IsConnected() {
		rabbitmq = "connected"
	}
	redis := "disabled"
	if h.cache.Enabled() {
		redis = "enabled"
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"gateway":          "running",
		"rabbitmq":         rabbitmq,
		"redis":            redis,
		"pending_requests": h.pending.Pending(),
		"timestamp":        h.now().Format(time.RFC3339),
	})
}
