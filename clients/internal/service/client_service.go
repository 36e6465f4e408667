package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"epos/clients/internal/models"
	"epos/clients/internal/repositories"
	"epos/pkg/apperr"
	"epos/pkg/messaging"
)

type EventPublisher interface {
	PublishEvent(ctx context.Context, msg messaging.Message) error
}

type ClientService struct {
	repo   *repositories.ClientRepository
	events EventPublisher
	logger logrus.FieldLogger
}

func NewClientService(repo *repositories.ClientRepository, events EventPublisher, logger logrus.FieldLogger) *ClientService {
	return &ClientService{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

func (s *ClientService) Create(ctx context.Context, req models.CreateClientRequest) (*models.Client, error) {
	req.Naziv = strings.TrimSpace(req.Naziv)
	req.Email = strings.TrimSpace(req.Email)
	if req.Naziv == "" || req.Email == "" {
		return nil, apperr.Validation("Nedostaju obavezni podaci (naziv, email)")
	}
	if req.TenantID == "" {
		return nil, apperr.Validation("Nedostaje tenant_id")
	}

	taken, err := s.repo.EmailTaken(ctx, req.TenantID, req.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, duplicateEmail(req.Email)
	}

	client := &models.Client{
		TenantID: req.TenantID,
		Naziv:    req.Naziv,
		Email:    req.Email,
		Telefon:  req.Telefon,
		Adresa:   req.Adresa,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, duplicateEmail(req.Email)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  client.TenantID,
		"klijent_id": client.ID,
	}).Info("Client created")
	return client, nil
}

func (s *ClientService) Update(ctx context.Context, req models.UpdateClientRequest) error {
	if req.KlijentID == "" {
		return apperr.Validation("Nedostaje klijent_id")
	}
	if req.Empty() {
		return apperr.Validation("Nedostaju podaci")
	}

	err := s.repo.Update(ctx, req)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return notFound()
	case errors.Is(err, repositories.ErrDuplicateEmail):
		return duplicateEmail(*req.Email)
	}
	return err
}

// Delete deactivates the client and announces it so dependent services can
// react. The announcement is best effort.
func (s *ClientService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.repo.Deactivate(ctx, tenantID, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return notFound()
		}
		return err
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"klijent_id": id,
	})
	log.Info("Client deactivated")

	event, err := messaging.NewMessage(messaging.MessageTypeClientDeleted, models.ClientDeleted{
		TenantID:  tenantID,
		KlijentID: id,
	})
	if err == nil {
		err = s.events.PublishEvent(ctx, event)
	}
	if err != nil {
		log.WithError(err).Warn("Failed to publish client_deleted")
	}
	return nil
}

func (s *ClientService) Get(ctx context.Context, tenantID, id string) (*models.Client, error) {
	client, err := s.repo.GetByID(ctx, tenantID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notFound()
	}
	return client, err
}

func (s *ClientService) List(ctx context.Context, tenantID string) ([]models.Client, error) {
	return s.repo.List(ctx, tenantID)
}

func duplicateEmail(email string) error {
	return apperr.AlreadyExists("Klijent sa email-om %s već postoji", email)
}

func notFound() error {
	return apperr.NotFound("Klijent nije pronađen")
}
