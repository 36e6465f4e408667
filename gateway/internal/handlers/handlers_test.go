package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epos/pkg/correlation"
	"epos/pkg/messaging"
	"epos/pkg/tenancy"
)

const apiKey = "key-1"

type sentCommand struct {
	t       messaging.MessageType
	payload map[string]interface{}
}

type fakeSender struct {
	reply messaging.Reply
	err   error
	sent  []sentCommand
}

func (f *fakeSender) SendAndWait(ctx context.Context, t messaging.MessageType, payload interface{}, timeout time.Duration) (messaging.Reply, error) {
	f.sent = append(f.sent, sentCommand{t: t, payload: payload.(map[string]interface{})})
	return f.reply, f.err
}

type memCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (m *memCache) Enabled() bool { return true }

func (m *memCache) Get(ctx context.Context, tenantID, uri string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.entries[tenantID+uri]
	return body, ok
}

func (m *memCache) Set(ctx context.Context, tenantID, uri string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tenantID+uri] = body
}

func (m *memCache) Invalidate(ctx context.Context, tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, tenantID)
	for k := range m.entries {
		if strings.HasPrefix(k, tenantID) {
			delete(m.entries, k)
		}
	}
}

type staticResolver struct{}

func (staticResolver) Resolve(ctx context.Context, key string) (*tenancy.Tenant, error) {
	if key != apiKey {
		return nil, tenancy.ErrInvalidKey
	}
	return &tenancy.Tenant{ID: "t-1", Status: tenancy.StatusActive}, nil
}

type brokerState bool

func (b brokerState) IsConnected() bool { return bool(b) }

type pending int

func (p pending) Pending() int { return int(p) }

func newGateway(sender Sender, cache Cache, upstream string) *echo.Echo {
	logger, _ := test.NewNullLogger()
	e := echo.New()
	e.Use(tenancy.Middleware(staticResolver{}, nil, logger, PublicPaths...))
	RegisterRoutes(e,
		NewCommandHandler(sender, cache, logger),
		NewProxyHandler(Upstreams{Clients: upstream, Invoices: upstream, Expenses: upstream}, cache, logger),
		NewSystemHandler(brokerState(true), pending(3), cache),
	)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(tenancy.HeaderAPIKey, apiKey)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateClientReturnsNewID(t *testing.T) {
	sender := &fakeSender{reply: messaging.Reply{"klijent_id": "k-1", "naziv": "Acme"}}
	cache := newMemCache()
	e := newGateway(sender, cache, "http://unused")

	rec := do(e, http.MethodPost, "/api/klijenti", `{"naziv":"Acme","email":"a@acme.com","tenant_id":"spoofed"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"k-1","status":"success"}`, rec.Body.String())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, messaging.MessageTypeCreateClient, sender.sent[0].t)
	assert.Equal(t, "t-1", sender.sent[0].payload["tenant_id"])
	assert.Equal(t, "a@acme.com", sender.sent[0].payload["email"])
	assert.Equal(t, []string{"t-1"}, cache.invalidated)
}

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   string
	}{
		{"client without email", http.MethodPost, "/api/klijenti", `{"naziv":"Acme"}`, "Nedostaju obavezni podaci (naziv, email)"},
		{"client with bad json", http.MethodPost, "/api/klijenti", `{`, "Nedostaju obavezni podaci (naziv, email)"},
		{"empty update", http.MethodPut, "/api/klijenti/k-1", ``, "Nedostaju podaci"},
		{"invoice without items", http.MethodPost, "/api/fakture", `{"klijent_id":"k-1"}`, "Nedostaju obavezni podaci (klijent_id, stavke)"},
		{"invoice with empty items", http.MethodPost, "/api/fakture", `{"klijent_id":"k-1","stavke":[]}`, "Faktura mora imati najmanje jednu stavku"},
		{"expense without date", http.MethodPost, "/api/troskovi", `{"naziv":"Gorivo","kategorija":"transport","iznos":10}`, "Nedostaju obavezni podaci (naziv, kategorija, iznos, datum)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			e := newGateway(sender, newMemCache(), "http://unused")

			rec := do(e, tt.method, tt.target, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.want), rec.Body.String())
			assert.Empty(t, sender.sent)
		})
	}
}

func TestCommandFailuresMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
		reply  messaging.Reply
		status int
	}{
		{
			name:   "duplicate client by code",
			method: http.MethodPost, target: "/api/klijenti", body: `{"naziv":"Acme","email":"a@acme.com"}`,
			reply:  messaging.Reply{"error": "Klijent sa email-om a@acme.com već postoji", "code": "already_exists"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown client by message",
			method: http.MethodDelete, target: "/api/klijenti/k-9",
			reply:  messaging.Reply{"error": "Klijent nije pronađen"},
			status: http.StatusNotFound,
		},
		{
			name:   "unexpected update failure",
			method: http.MethodPut, target: "/api/fakture/f-1", body: `{"status":"placena"}`,
			reply:  messaging.Reply{"error": "disk full"},
			status: http.StatusInternalServerError,
		},
		{
			name:   "invoice creation defaults to bad request",
			method: http.MethodPost, target: "/api/fakture", body: `{"klijent_id":"k-1","stavke":[{"naziv":"A","kolicina":1,"cijena":2}]}`,
			reply:  messaging.Reply{"error": "Klijent ne postoji"},
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid category",
			method: http.MethodPost, target: "/api/troskovi", body: `{"naziv":"X","kategorija":"hrana","iznos":1,"datum":"2024-01-01"}`,
			reply:  messaging.Reply{"error": "Neispravna kategorija: hrana", "code": "validation"},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newMemCache()
			e := newGateway(&fakeSender{reply: tt.reply}, cache, "http://unused")

			rec := do(e, tt.method, tt.target, tt.body)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.reply["error"], body["error"])
			assert.Empty(t, cache.invalidated)
		})
	}
}

func TestCommandTransportFailures(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		sender := &fakeSender{
			reply: messaging.Reply{"error": "Request timeout"},
			err:   fmt.Errorf("await: %w", correlation.ErrTimedOut),
		}
		rec := do(newGateway(sender, newMemCache(), "http://unused"), http.MethodDelete, "/api/troskovi/t-1", "")

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.JSONEq(t, `{"error":"Request timeout"}`, rec.Body.String())
	})

	t.Run("broker down", func(t *testing.T) {
		sender := &fakeSender{err: messaging.ErrBrokerUnavailable}
		rec := do(newGateway(sender, newMemCache(), "http://unused"), http.MethodDelete, "/api/troskovi/t-1", "")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestUpdateCarriesPathID(t *testing.T) {
	sender := &fakeSender{reply: messaging.Reply{"trosak_id": "e-1"}}
	rec := do(newGateway(sender, newMemCache(), "http://unused"), http.MethodPut, "/api/troskovi/e-1", `{"status":"izvršen"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, messaging.MessageTypeUpdateExpense, sender.sent[0].t)
	assert.Equal(t, "e-1", sender.sent[0].payload["trosak_id"])
	assert.Equal(t, "izvršen", sender.sent[0].payload["status"])
}

func TestFailureStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, FailureStatus(messaging.Reply{"error": "x", "code": "not_found"}, 500))
	assert.Equal(t, http.StatusInternalServerError, FailureStatus(messaging.Reply{"error": "Klijent nije pronađen", "code": "internal"}, 400))
	assert.Equal(t, http.StatusBadRequest, FailureStatus(messaging.Reply{"error": "Email a@b.c je već registrovan"}, 500))
	assert.Equal(t, http.StatusNotFound, FailureStatus(messaging.Reply{"error": "Faktura nije pronađena"}, 500))
	assert.Equal(t, http.StatusNotFound, FailureStatus(messaging.Reply{"error": "Invoice Not Found"}, 500))
	assert.Equal(t, http.StatusTeapot, FailureStatus(messaging.Reply{"error": "boom"}, http.StatusTeapot))
}

func TestProxyForwardsAndCaches(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, apiKey, r.Header.Get(tenancy.HeaderAPIKey))
		assert.Equal(t, "/api/troskovi", r.URL.Path)
		assert.Equal(t, "transport", r.URL.Query().Get("kategorija"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"e-1"}]`))
	}))
	defer upstream.Close()

	cache := newMemCache()
	e := newGateway(&fakeSender{}, cache, upstream.URL)

	rec := do(e, http.MethodGet, "/api/troskovi?kategorija=transport", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"e-1"}]`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/troskovi?kategorija=transport", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, hits)

	cache.Invalidate(context.Background(), "t-1")
	do(e, http.MethodGet, "/api/troskovi?kategorija=transport", "")
	assert.Equal(t, 2, hits)
}

func TestProxyNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"gone"}`))
	}))
	defer upstream.Close()

	cache := newMemCache()
	e := newGateway(&fakeSender{}, cache, upstream.URL)

	tests := []struct {
		target string
		body   string
	}{
		{"/api/klijenti/k-1", `{"error":"Klijent nije pronađen"}`},
		{"/api/fakture/f-1", `{"error":"Faktura nije pronađena"}`},
		{"/api/troskovi/e-1", `{"error":"Trošak nije pronađen"}`},
		{"/api/klijenti/k-1/fakture", `{"error":"gone"}`},
	}
	for _, tt := range tests {
		rec := do(e, http.MethodGet, tt.target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, tt.target)
		assert.JSONEq(t, tt.body, rec.Body.String(), tt.target)
	}
	assert.Empty(t, cache.entries)
}

func TestProxyUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	upstream.Close()

	rec := do(newGateway(&fakeSender{}, newMemCache(), upstream.URL), http.MethodGet, "/api/kategorije", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Servis nedostupan"}`, rec.Body.String())
}

func TestProxyRequiresTenantKey(t *testing.T) {
	e := newGateway(&fakeSender{}, newMemCache(), "http://unused")

	req := httptest.NewRequest(http.MethodGet, "/api/klijenti", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSystemEndpoints(t *testing.T) {
	e := newGateway(&fakeSender{}, newMemCache(), "http://unused")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"api-gateway","rabbitmq_connected":true,"redis_enabled":true}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status["gateway"])
	assert.Equal(t, "connected", status["rabbitmq"])
	assert.Equal(t, "enabled", status["redis"])
	assert.Equal(t, float64(3), status["pending_requests"])
	assert.NotEmpty(t, status["timestamp"])
}
