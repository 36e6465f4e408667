package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"epos/expenses/internal/models"
	"epos/expenses/internal/repositories"
	"epos/pkg/apperr"
	"epos/pkg/messaging"
)

// TransportCostShare is the part of an invoice total booked as transport cost.
const TransportCostShare = 0.1

type CommandPublisher interface {
	PublishCommand(ctx context.Context, msg messaging.Message, replyTo string) error
}

type ExpenseService struct {
	repo      *repositories.ExpenseRepository
	publisher CommandPublisher
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewExpenseService(repo *repositories.ExpenseRepository, publisher CommandPublisher, logger logrus.FieldLogger) *ExpenseService {
	return &ExpenseService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ExpenseService) Create(ctx context.Context, req models.CreateExpenseRequest) (*models.Expense, error) {
	if req.TenantID == "" {
		return nil, apperr.Validation("Nedostaje tenant_id")
	}
	if strings.TrimSpace(req.Naziv) == "" || req.Kategorija == "" || req.Iznos == nil || req.Datum == "" {
		return nil, apperr.Validation("Nedostaju obavezni podaci (naziv, kategorija, iznos, datum)")
	}
	if *req.Iznos < 0 {
		return nil, apperr.Validation("Iznos ne može biti negativan")
	}
	if err := validDate(req.Datum); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, req.Kategorija); err != nil {
		return nil, err
	}

	expense := &models.Expense{
		TenantID:   req.TenantID,
		Naziv:      req.Naziv,
		Kategorija: req.Kategorija,
		Iznos:      *req.Iznos,
		Datum:      req.Datum,
		Opis:       req.Opis,
		Status:     models.ExpenseStatusPlanned,
	}
	if req.PovezanoSa != "" {
		expense.PovezanoSa = &req.PovezanoSa
	}

	if err := s.repo.Create(ctx, expense); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  expense.TenantID,
		"trosak_id":  expense.ID,
		"kategorija": expense.Kategorija,
		"iznos":      expense.Iznos,
	}).Info("Expense created")
	return expense, nil
}

func (s *ExpenseService) Update(ctx context.Context, req models.UpdateExpenseRequest) error {
	if req.TrosakID == "" {
		return apperr.Validation("Nedostaje trosak_id")
	}
	if req.Empty() {
		return apperr.Validation("Nedostaju podaci")
	}
	if req.Status != nil && !req.Status.Valid() {
		return apperr.Validation("Neispravan status: %s", *req.Status)
	}
	if req.Iznos != nil && *req.Iznos < 0 {
		return apperr.Validation("Iznos ne može biti negativan")
	}
	if req.Datum != nil {
		if err := validDate(*req.Datum); err != nil {
			return err
		}
	}
	if req.Kategorija != nil {
		if err := s.checkCategory(ctx, *req.Kategorija); err != nil {
			return err
		}
	}

	if err := s.repo.Update(ctx, req); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return notFound()
		}
		return err
	}
	return nil
}

func (s *ExpenseService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return notFound()
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"trosak_id": id,
	}).Info("Expense deleted")
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, tenantID, id string) (*models.Expense, error) {
	expense, err := s.repo.GetByID(ctx, tenantID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notFound()
	}
	return expense, err
}

func (s *ExpenseService) List(ctx context.Context, tenantID string, filter models.Filter) ([]models.Expense, error) {
	return s.repo.List(ctx, tenantID, filter)
}

func (s *ExpenseService) Categories(ctx context.Context) ([]models.Category, error) {
	return s.repo.Categories(ctx)
}

func (s *ExpenseService) Statistics(ctx context.Context, tenantID, datumOd, datumDo string) (*models.Statistics, error) {
	return s.repo.Statistics(ctx, tenantID, datumOd, datumDo)
}

// BookTransport requests the transport cost of a new invoice. Publishing is
// the only effect, so a failure is returned and the event redelivered.
func (s *ExpenseService) BookTransport(ctx context.Context, event models.InvoiceCreated) error {
	if event.FakturaID == "" || event.BrojFakture == "" {
		return apperr.Validation("Nedostaju podaci o fakturi")
	}

	command, err := messaging.NewMessage(messaging.MessageTypeCreateExpense, s.TransportExpense(event))
	if err != nil {
		return err
	}
	if err := s.publisher.PublishCommand(ctx, command, ""); err != nil {
		return fmt.Errorf("request transport expense: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":    event.TenantID,
		"faktura_id":   event.FakturaID,
		"broj_fakture": event.BrojFakture,
	}).Info("Transport expense requested")
	return nil
}

// TransportExpense derives the transport cost booked for a new invoice.
func (s *ExpenseService) TransportExpense(event models.InvoiceCreated) models.CreateExpenseRequest {
	amount := roundCents(event.Iznos * TransportCostShare)
	return models.CreateExpenseRequest{
		TenantID:   event.TenantID,
		Naziv:      fmt.Sprintf("Transport za %s", event.BrojFakture),
		Kategorija: "transport",
		Iznos:      &amount,
		Datum:      s.now().Format(models.DateLayout),
		Opis:       fmt.Sprintf("Automatski kreiran trošak transporta za fakturu %s", event.BrojFakture),
		PovezanoSa: event.FakturaID,
	}
}

func (s *ExpenseService) checkCategory(ctx context.Context, kategorija string) error {
	ok, err := s.repo.CategoryExists(ctx, kategorija)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Validation("Neispravna kategorija: %s", kategorija)
	}
	return nil
}

func validDate(datum string) error {
	if _, err := time.Parse(models.DateLayout, datum); err != nil {
		return apperr.Validation("Neispravan datum: %s", datum)
	}
	return nil
}

func notFound() error {
	return apperr.NotFound("Trošak nije pronađen")
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
