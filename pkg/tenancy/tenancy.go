// Package tenancy resolves the X-Tenant-API-Key header to a tenant.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	HeaderAPIKey = "X-Tenant-API-Key"

	StatusActive    = "active"
	StatusSuspended = "suspended"

	contextKey = "tenant"
)

var (
	ErrMissingKey  = errors.New("missing api key")
	ErrInvalidKey  = errors.New("invalid api key")
	ErrInactive    = errors.New("tenant is not active")
	ErrUnavailable = errors.New("tenant service unavailable")
)

type Tenant struct {
	ID              string `json:"id"`
	Naziv           string `json:"naziv"`
	KontaktEmail    string `json:"kontakt_email"`
	KontaktTelefon  string `json:"kontakt_telefon"`
	Adresa          string `json:"adresa"`
	Status          string `json:"status"`
	DatumKreiranja  string `json:"datum_kreiranja"`
	DatumAktivacije string `json:"datum_aktivacije,omitempty"`
}

// StatusError is returned for a known key whose tenant is not active.
type StatusError struct {
	Status string
}

func (e *StatusError) Error() string {
	return "Tenant status: " + e.Status
}

func (e *StatusError) Is(target error) bool {
	return target == ErrInactive
}

type Resolver interface {
	Resolve(ctx context.Context, apiKey string) (*Tenant, error)
}

type Usage struct {
	Endpoint string  `json:"endpoint"`
	Method   string  `json:"method"`
	Cost     float64 `json:"cost"`
}

type UsageRecorder interface {
	RecordUsage(ctx context.Context, apiKey string, usage Usage) error
}

// UsageCost prices one API call.
func UsageCost(method string) float64 {
	switch method {
	case http.MethodPost:
		return 0.5
	case http.MethodGet:
		return 0.01
	default:
		return 0
	}
}

// Middleware authenticates every request except the ones skipped by path prefix.
// When recorder is not nil each authenticated call is billed asynchronously.
func Middleware(resolver Resolver, recorder UsageRecorder, logger logrus.FieldLogger, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, prefix := range skip {
				if strings.HasPrefix(path, prefix) {
					return next(c)
				}
			}

			apiKey := c.Request().Header.Get(HeaderAPIKey)
			if apiKey == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing X-Tenant-API-Key header"})
			}

			tenant, err := resolver.Resolve(c.Request().Context(), apiKey)
			if err != nil {
				var statusErr *StatusError
				switch {
				case errors.As(err, &statusErr):
					return c.JSON(http.StatusForbidden, map[string]string{"error": statusErr.Error(), "status": statusErr.Status})
				case errors.Is(err, ErrInvalidKey):
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid API key"})
				default:
					logger.WithError(err).Error("Tenant resolution failed")
					return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Servis nedostupan"})
				}
			}

			c.Set(contextKey, tenant)
			err = next(c)

			if recorder != nil && err == nil && c.Response().Status < http.StatusBadRequest {
				usage := Usage{Endpoint: path, Method: c.Request().Method, Cost: UsageCost(c.Request().Method)}
				go record(recorder, apiKey, usage, logger)
			}
			return err
		}
	}
}

func record(recorder UsageRecorder, apiKey string, usage Usage, logger logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := recorder.RecordUsage(ctx, apiKey, usage); err != nil {
		logger.WithError(err).WithField("endpoint", usage.Endpoint).Warn("Failed to record API usage")
	}
}

// FromContext returns the tenant stored by Middleware.
func FromContext(c echo.Context) (*Tenant, bool) {
	tenant, ok := c.Get(contextKey).(*Tenant)
	return tenant, ok && tenant != nil
}

// MustFromContext is for handlers mounted behind Middleware.
func MustFromContext(c echo.Context) *Tenant {
	tenant, ok := FromContext(c)
	if !ok {
		panic(fmt.Sprintf("tenancy: no tenant on %s %s", c.Request().Method, c.Path()))
	}
	return tenant
}
