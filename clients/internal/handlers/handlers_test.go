package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epos/clients/internal/repositories"
	"epos/clients/internal/service"
	"epos/pkg/db"
	"epos/pkg/messaging"
	"epos/pkg/tenancy"
)

type tenantKeys map[string]string

func (k tenantKeys) Resolve(ctx context.Context, key string) (*tenancy.Tenant, error) {
	id, ok := k[key]
	if !ok {
		return nil, tenancy.ErrInvalidKey
	}
	return &tenancy.Tenant{ID: id, Status: tenancy.StatusActive}, nil
}

type nopEvents struct{}

func (nopEvents) PublishEvent(ctx context.Context, msg messaging.Message) error { return nil }

type captured struct {
	replyTo       string
	correlationID string
	reply         messaging.Reply
}

type captureReplies struct {
	sent []captured
}

func (c *captureReplies) PublishReply(ctx context.Context, replyTo, correlationID string, reply messaging.Reply) error {
	c.sent = append(c.sent, captured{replyTo: replyTo, correlationID: correlationID, reply: reply})
	return nil
}

func newClientService(t *testing.T) *service.ClientService {
	t.Helper()
	path := filepath.Join(t.TempDir(), "epos.db")
	require.NoError(t, db.Migrate(path, repositories.Migrations, "clients"))
	conn, err := db.Connect(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	logger, _ := test.NewNullLogger()
	return service.NewClientService(repositories.NewClientRepository(conn), nopEvents{}, logger)
}

func newServer(svc *service.ClientService) *echo.Echo {
	logger, _ := test.NewNullLogger()
	e := echo.New()
	e.Use(tenancy.Middleware(tenantKeys{"key-1": "t-1", "key-2": "t-2"}, nil, logger))
	NewClientHandler(svc, logger).RegisterRoutes(e)
	return e
}

func call(e *echo.Echo, key, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(tenancy.HeaderAPIKey, key)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestClientAPI(t *testing.T) {
	e := newServer(newClientService(t))

	rec := call(e, "key-1", http.MethodPost, "/api/klijenti", `{"naziv":"Acme","email":"a@acme.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var created map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "success", created["status"])
	id := created["id"]
	require.NotEmpty(t, id)

	rec = call(e, "key-1", http.MethodPost, "/api/klijenti", `{"naziv":"Acme","email":"a@acme.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Klijent sa email-om a@acme.com već postoji"}`, rec.Body.String())

	rec = call(e, "key-1", http.MethodPut, "/api/klijenti/"+id, `{"adresa":"Sarajevo"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(e, "key-1", http.MethodGet, "/api/klijenti/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"adresa":"Sarajevo"`)

	rec = call(e, "key-2", http.MethodGet, "/api/klijenti/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Klijent nije pronađen"}`, rec.Body.String())

	rec = call(e, "key-2", http.MethodGet, "/api/klijenti", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = call(e, "key-1", http.MethodDelete, "/api/klijenti/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(e, "key-1", http.MethodGet, "/api/klijenti/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClientAPIValidation(t *testing.T) {
	e := newServer(newClientService(t))

	rec := call(e, "key-1", http.MethodPost, "/api/klijenti", `{"naziv":"Acme"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Nedostaju obavezni podaci (naziv, email)"}`, rec.Body.String())

	rec = call(e, "key-1", http.MethodPost, "/api/klijenti", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func deliver(t *testing.T, router *messaging.Router, typ messaging.MessageType, payload interface{}) error {
	t.Helper()
	msg, err := messaging.NewMessage(typ, payload)
	require.NoError(t, err)
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	return router.Deliver(context.Background(), amqp.Delivery{
		Body:          body,
		ReplyTo:       "response_queue",
		CorrelationId: msg.ID,
		Type:          string(typ),
	})
}

func TestConsumerHandlerCommands(t *testing.T) {
	logger, _ := test.NewNullLogger()
	replies := &captureReplies{}
	router := messaging.NewRouter(replies, logger)
	NewConsumerHandler(newClientService(t)).Register(router)

	assert.Equal(t, []messaging.MessageType{
		messaging.MessageTypeCreateClient,
		messaging.MessageTypeDeleteClient,
		messaging.MessageTypeUpdateClient,
	}, router.RoutingKeys())

	create := map[string]string{"tenant_id": "t-1", "naziv": "Acme", "email": "a@acme.com"}
	require.NoError(t, deliver(t, router, messaging.MessageTypeCreateClient, create))
	require.Len(t, replies.sent, 1)
	assert.Equal(t, "response_queue", replies.sent[0].replyTo)
	assert.Equal(t, "Acme", replies.sent[0].reply["naziv"])
	id := replies.sent[0].reply.String("klijent_id")
	require.NotEmpty(t, id)

	require.NoError(t, deliver(t, router, messaging.MessageTypeCreateClient, create))
	failure, failed := replies.sent[1].reply.Failure()
	assert.True(t, failed)
	assert.Equal(t, "Klijent sa email-om a@acme.com već postoji", failure)
	assert.Equal(t, "already_exists", replies.sent[1].reply.Code())

	require.NoError(t, deliver(t, router, messaging.MessageTypeUpdateClient,
		map[string]string{"tenant_id": "t-1", "klijent_id": id, "naziv": "Acme d.o.o."}))
	_, failed = replies.sent[2].reply.Failure()
	assert.False(t, failed)

	require.NoError(t, deliver(t, router, messaging.MessageTypeDeleteClient,
		map[string]string{"tenant_id": "t-1", "klijent_id": id}))
	assert.Equal(t, id, replies.sent[3].reply.String("klijent_id"))

	require.NoError(t, deliver(t, router, messaging.MessageTypeDeleteClient,
		map[string]string{"tenant_id": "t-1", "klijent_id": id}))
	assert.Equal(t, "not_found", replies.sent[4].reply.Code())
}
