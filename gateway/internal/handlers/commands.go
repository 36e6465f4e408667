package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"epos/pkg/apperr"
	"epos/pkg/correlation"
	"epos/pkg/messaging"
	"epos/pkg/tenancy"
)

// Sender sends a command and waits for the reply.
type Sender interface {
	SendAndWait(ctx context.Context, t messaging.MessageType, payload interface{}, timeout time.Duration) (messaging.Reply, error)
}

// Cache holds proxied reads per tenant. Implementations must tolerate being
// disabled.
type Cache interface {
	Enabled() bool
	Get(ctx context.Context, tenantID, uri string) ([]byte, bool)
	Set(ctx context.Context, tenantID, uri string, body []byte)
	Invalidate(ctx context.Context, tenantID string)
}

// CommandHandler turns mutating REST calls into broker commands.
type CommandHandler struct {
	sender Sender
	cache  Cache
	logger logrus.FieldLogger
}

func NewCommandHandler(sender Sender, cache Cache, logger logrus.FieldLogger) *CommandHandler {
	return &CommandHandler{
		sender: sender,
		cache:  cache,
		logger: logger,
	}
}

func (h *CommandHandler) CreateClient(c echo.Context) error {
	data := decodeBody(c)
	if !hasKeys(data, "naziv", "email") {
		return errorJSON(c, http.StatusBadRequest, "Nedostaju obavezni podaci (naziv, email)")
	}
	return h.dispatch(c, messaging.MessageTypeCreateClient, data, http.StatusInternalServerError, "klijent_id")
}

func (h *CommandHandler) UpdateClient(c echo.Context) error {
	data := decodeBody(c)
	if len(data) == 0 {
		return errorJSON(c, http.StatusBadRequest, "Nedostaju podaci")
	}
	data["klijent_id"] = c.Param("id")
	return h.dispatch(c, messaging.MessageTypeUpdateClient, data, http.StatusInternalServerError, "")
}

func (h *CommandHandler) DeleteClient(c echo.Context) error {
	data := map[string]interface{}{"klijent_id": c.Param("id")}
	return h.dispatch(c, messaging.MessageTypeDeleteClient, data, http.StatusInternalServerError, "")
}

func (h *CommandHandler) CreateInvoice(c echo.Context) error {
	data := decodeBody(c)
	if !hasKeys(data, "klijent_id", "stavke") {
		return errorJSON(c, http.StatusBadRequest, "Nedostaju obavezni podaci (klijent_id, stavke)")
	}
	if items, ok := data["stavke"].([]interface{}); !ok || len(items) == 0 {
		return errorJSON(c, http.StatusBadRequest, "Faktura mora imati najmanje jednu stavku")
	}
	return h.dispatch(c, messaging.MessageTypeCreateInvoice, data, http.StatusBadRequest, "faktura_id")
}

func (h *CommandHandler) UpdateInvoice(c echo.Context) error {
	data := decodeBody(c)
	if len(data) == 0 {
		return errorJSON(c, http.StatusBadRequest, "Nedostaju podaci")
	}
	data["faktura_id"] = c.Param("id")
	return h.dispatch(c, messaging.MessageTypeUpdateInvoice, data, http.StatusInternalServerError, "")
}

func (h *CommandHandler) DeleteInvoice(c echo.Context) error {
	data := map[string]interface{}{"faktura_id": c.Param("id")}
	return h.dispatch(c, messaging.MessageTypeDeleteInvoice, data, http.StatusInternalServerError, "")
}

func (h *CommandHandler) CreateExpense(c echo.Context) error {
	data := decodeBody(c)
	if !hasKeys(data, "naziv", "kategorija", "iznos", "datum") {
		return errorJSON(c, http.StatusBadRequest, "Nedostaju obavezni podaci (naziv, kategorija, iznos, datum)")
	}
	return h.dispatch(c, messaging.MessageTypeCreateExpense, data, http.StatusBadRequest, "trosak_id")
}

func (h *CommandHandler) UpdateExpense(c echo.Context) error {
	data := decodeBody(c)
	if len(data) == 0 {
		return errorJSON(c, http.StatusBadRequest, "Nedostaju podaci")
	}
	data["trosak_id"] = c.Param("id")
	return h.dispatch(c, messaging.MessageTypeUpdateExpense, data, http.StatusInternalServerError, "")
}

func (h *CommandHandler) DeleteExpense(c echo.Context) error {
	data := map[string]interface{}{"trosak_id": c.Param("id")}
	return h.dispatch(c, messaging.MessageTypeDeleteExpense, data, http.StatusInternalServerError, "")
}

// dispatch stamps the caller's tenant on the payload, waits for the reply and
// renders it. idKey names the reply field returned as "id" on success.
func (h *CommandHandler) dispatch(c echo.Context, t messaging.MessageType, payload map[string]interface{}, fallback int, idKey string) error {
	ctx := c.Request().Context()
	tenant := tenancy.MustFromContext(c)
	payload["tenant_id"] = tenant.ID

	log := h.logger.WithFields(logrus.Fields{
		"type":      t,
		"tenant_id": tenant.ID,
	})

	reply, err := h.sender.SendAndWait(ctx, t, payload, 0)
	if err != nil {
		switch {
		case errors.Is(err, correlation.ErrTimedOut):
			return c.JSON(http.StatusGatewayTimeout, reply)
		case errors.Is(err, messaging.ErrBrokerUnavailable):
			return errorJSON(c, http.StatusServiceUnavailable, "RabbitMQ connection not available")
		default:
			log.WithError(err).Error("Command failed")
			return errorJSON(c, http.StatusInternalServerError, "Internal server error")
		}
	}

	if msg, failed := reply.Failure(); failed {
		status := FailureStatus(reply, fallback)
		log.WithFields(logrus.Fields{"status": status, "error": msg}).Info("Command rejected")
		return c.JSON(status, reply)
	}

	h.cache.Invalidate(ctx, tenant.ID)

	response := map[string]interface{}{"status": "success"}
	if idKey != "" {
		response["id"] = reply[idKey]
	}
	return c.JSON(http.StatusOK, response)
}

// FailureStatus picks the HTTP status for a failure reply: the structured code
// wins, then well known message fragments, then the route's fallback.
func FailureStatus(reply messaging.Reply, fallback int) int {
	if code := reply.Code(); code != "" {
		return apperr.HTTPStatus(apperr.Code(code))
	}

	msg, _ := reply.Failure()
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "već postoji"),
		strings.Contains(msg, "već registrovan"),
		strings.Contains(msg, "already exists"):
		return http.StatusBadRequest
	case strings.Contains(msg, "nije pronađen"),
		strings.Contains(msg, "not found"):
		return http.StatusNotFound
	default:
		return fallback
	}
}

// decodeBody returns nil for an empty or non-object body.
func decodeBody(c echo.Context) map[string]interface{} {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil || len(body) == 0 {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}
	return data
}

func hasKeys(data map[string]interface{}, keys ...string) bool {
	if data == nil {
		return false
	}
	for _, k := range keys {
		if _, ok := data[k]; !ok {
			return false
		}
	}
	return true
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}
