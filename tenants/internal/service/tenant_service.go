package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"epos/pkg/apperr"
	"epos/pkg/messaging"
	"epos/pkg/tenancy"
	"epos/tenants/internal/models"
	"epos/tenants/internal/repositories"
)

const noReason = "No reason provided"

type EventPublisher interface {
	PublishEvent(ctx context.Context, msg messaging.Message) error
}

// TenantService handles onboarding and is the key resolver for this service.
type TenantService struct {
	repo      *repositories.TenantRepository
	publisher EventPublisher
	logger    logrus.FieldLogger
}

func NewTenantService(repo *repositories.TenantRepository, publisher EventPublisher, logger logrus.FieldLogger) *TenantService {
	return &TenantService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *TenantService) SubmitRequest(ctx context.Context, submit models.SubmitRequest) (*models.TenantRequest, error) {
	if missing := submit.Missing(); len(missing) > 0 {
		return nil, apperr.Validation("Nedostaju podaci: %s", strings.Join(missing, ", "))
	}

	req := &models.TenantRequest{
		NazivKompanije: submit.NazivKompanije,
		KontaktOsoba:   submit.KontaktOsoba,
		Email:          strings.TrimSpace(submit.Email),
		Telefon:        submit.Telefon,
		Adresa:         submit.Adresa,
		OpisPoslovanja: submit.OpisPoslovanja,
	}
	if err := s.repo.SubmitRequest(ctx, req); err != nil {
		if errors.Is(err, repositories.ErrEmailRegistered) {
			return nil, apperr.AlreadyExists("Email %s je već registrovan", req.Email)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"email":      req.Email,
	}).Info("Tenant request submitted")
	return req, nil
}

func (s *TenantService) Requests(ctx context.Context) ([]models.TenantRequest, error) {
	return s.repo.Requests(ctx)
}

// Approve activates the tenant and announces it. The announcement is best
// effort; the tenant is usable as soon as the store commits.
func (s *TenantService) Approve(ctx context.Context, requestID, napomene string) (*models.Tenant, error) {
	tenant, err := s.repo.Approve(ctx, requestID, napomene)
	if errors.Is(err, repositories.ErrRequestNotOpen) {
		return nil, requestNotOpen()
	}
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"tenant_id":  tenant.ID,
	})
	log.Info("Tenant approved")

	event, err := messaging.NewMessage(messaging.MessageTypeTenantActivated, models.TenantActivated{
		TenantID: tenant.ID,
		Naziv:    tenant.Naziv,
	})
	if err == nil {
		err = s.publisher.PublishEvent(ctx, event)
	}
	if err != nil {
		log.WithError(err).Warn("Failed to publish tenant_activated")
	}
	return tenant, nil
}

func (s *TenantService) Reject(ctx context.Context, requestID, napomene string) error {
	if napomene == "" {
		napomene = noReason
	}
	if err := s.repo.Reject(ctx, requestID, napomene); err != nil {
		if errors.Is(err, repositories.ErrRequestNotOpen) {
			return requestNotOpen()
		}
		return err
	}

	s.logger.WithField("request_id", requestID).Info("Tenant request rejected")
	return nil
}

func (s *TenantService) Tenants(ctx context.Context) ([]models.Tenant, error) {
	return s.repo.Tenants(ctx)
}

func (s *TenantService) Suspend(ctx context.Context, tenantID, razlog string) error {
	if razlog == "" {
		razlog = noReason
	}
	if err := s.repo.SetStatus(ctx, tenantID, tenancy.StatusSuspended); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperr.NotFound("Tenant nije pronađen")
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"razlog":    razlog,
	}).Info("Tenant suspended")
	return nil
}

// Resolve implements tenancy.Resolver against the local store.
func (s *TenantService) Resolve(ctx context.Context, apiKey string) (*tenancy.Tenant, error) {
	tenant, err := s.repo.ByAPIKey(ctx, apiKey)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, tenancy.ErrInvalidKey
	}
	if err != nil {
		return nil, err
	}
	if tenant.Status != tenancy.StatusActive {
		return nil, &tenancy.StatusError{Status: tenant.Status}
	}
	return &tenant.Tenant, nil
}

func (s *TenantService) RecordUsage(ctx context.Context, tenantID string, usage tenancy.Usage) error {
	if usage.Endpoint == "" || usage.Method == "" {
		return apperr.Validation("Nedostaju podaci: endpoint, method")
	}
	if usage.Cost < 0 {
		return apperr.Validation("Trošak ne može biti negativan")
	}
	return s.repo.RecordUsage(ctx, tenantID, usage)
}

func (s *TenantService) UsageSummary(ctx context.Context, tenantID string) (*models.UsageSummary, error) {
	return s.repo.UsageSummary(ctx, tenantID)
}

func requestNotOpen() error {
	return apperr.NotFound("Zahtjev nije pronađen ili je već obrađen")
}
