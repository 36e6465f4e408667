package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"epos/invoices/internal/models"
	"epos/invoices/internal/repositories"
	"epos/pkg/apperr"
	"epos/pkg/messaging"
)

// MaterialCostShare is the part of an invoice total booked as material cost.
const MaterialCostShare = 0.6

type Publisher interface {
	PublishEvent(ctx context.Context, msg messaging.Message) error
	PublishCommand(ctx context.Context, msg messaging.Message, replyTo string) error
}

type InvoiceService struct {
	repo      *repositories.InvoiceRepository
	publisher Publisher
	logger    logrus.FieldLogger
}

func NewInvoiceService(repo *repositories.InvoiceRepository, publisher Publisher, logger logrus.FieldLogger) *InvoiceService {
	return &InvoiceService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// Create stores the invoice, announces it and requests the derived material
// expense. The follow-up messages are not part of the store transaction: a
// lost message leaves the invoice in place without its derived expense.
func (s *InvoiceService) Create(ctx context.Context, req models.CreateInvoiceRequest) (*models.Invoice, error) {
	if req.TenantID == "" {
		return nil, apperr.Validation("Nedostaje tenant_id")
	}
	if req.KlijentID == "" {
		return nil, apperr.Validation("Nedostaju obavezni podaci (klijent_id, stavke)")
	}
	if len(req.Stavke) == 0 {
		return nil, apperr.Validation("Faktura mora imati najmanje jednu stavku")
	}

	invoice := &models.Invoice{
		TenantID:  req.TenantID,
		KlijentID: req.KlijentID,
		Status:    models.InvoiceStatusCreated,
		Stavke:    make([]models.Item, 0, len(req.Stavke)),
	}
	for _, item := range req.Stavke {
		if strings.TrimSpace(item.Naziv) == "" {
			return nil, apperr.Validation("Stavka mora imati naziv")
		}
		if item.Kolicina <= 0 || item.Cijena < 0 {
			return nil, apperr.Validation("Neispravna količina ili cijena za stavku %s", item.Naziv)
		}
		total := item.Kolicina * item.Cijena
		invoice.Iznos += total
		invoice.Stavke = append(invoice.Stavke, models.Item{
			Naziv:    item.Naziv,
			Kolicina: item.Kolicina,
			Cijena:   item.Cijena,
			Ukupno:   total,
		})
	}

	if err := s.repo.Create(ctx, invoice); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":    invoice.TenantID,
		"faktura_id":   invoice.ID,
		"broj_fakture": invoice.BrojFakture,
	})
	log.Info("Invoice created")

	s.announce(ctx, invoice, log)
	return invoice, nil
}

func (s *InvoiceService) announce(ctx context.Context, invoice *models.Invoice, log logrus.FieldLogger) {
	event, err := messaging.NewMessage(messaging.MessageTypeInvoiceCreated, models.InvoiceCreated{
		TenantID:    invoice.TenantID,
		FakturaID:   invoice.ID,
		BrojFakture: invoice.BrojFakture,
		KlijentID:   invoice.KlijentID,
		Iznos:       invoice.Iznos,
	})
	if err == nil {
		err = s.publisher.PublishEvent(ctx, event)
	}
	if err != nil {
		log.WithError(err).Warn("Failed to publish invoice_created")
	}

	command, err := messaging.NewMessage(messaging.MessageTypeCreateExpense, MaterialExpense(invoice))
	if err == nil {
		err = s.publisher.PublishCommand(ctx, command, "")
	}
	if err != nil {
		log.WithError(err).Warn("Failed to request material expense")
	}
}

// MaterialExpense derives the material cost booked for a new invoice.
func MaterialExpense(invoice *models.Invoice) models.CreateExpense {
	return models.CreateExpense{
		TenantID:   invoice.TenantID,
		Naziv:      fmt.Sprintf("Materijal za fakturu %s", invoice.BrojFakture),
		Kategorija: "materijal",
		Iznos:      roundCents(invoice.Iznos * MaterialCostShare),
		Datum:      invoice.Datum[:len("2006-01-02")],
		Opis:       fmt.Sprintf("Automatski kreiran trošak za fakturu %s", invoice.BrojFakture),
		PovezanoSa: invoice.ID,
	}
}

func (s *InvoiceService) Update(ctx context.Context, req models.UpdateInvoiceRequest) error {
	if req.FakturaID == "" {
		return apperr.Validation("Nedostaje faktura_id")
	}
	if req.Status == nil && req.Iznos == nil {
		return apperr.Validation("Nedostaju podaci")
	}
	if req.Status != nil && !req.Status.Valid() {
		return apperr.Validation("Neispravan status: %s", *req.Status)
	}
	if req.Iznos != nil && *req.Iznos < 0 {
		return apperr.Validation("Iznos ne može biti negativan")
	}

	if err := s.repo.Update(ctx, req); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return notFound()
		}
		return err
	}
	return nil
}

func (s *InvoiceService) Delete(ctx context.Context, tenantID, id string) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return notFound()
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"faktura_id": id,
	}).Info("Invoice deleted")
	return nil
}

func (s *InvoiceService) Get(ctx context.Context, tenantID, id string) (*models.Invoice, error) {
	invoice, err := s.repo.GetByID(ctx, tenantID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, notFound()
	}
	return invoice, err
}

func (s *InvoiceService) List(ctx context.Context, tenantID string) ([]models.Invoice, error) {
	return s.repo.List(ctx, tenantID)
}

func (s *InvoiceService) ListByClient(ctx context.Context, tenantID, klijentID string) ([]models.Invoice, error) {
	return s.repo.ListByClient(ctx, tenantID, klijentID)
}

// CancelForClient reacts to a deleted client by cancelling its unpaid invoices.
func (s *InvoiceService) CancelForClient(ctx context.Context, event models.ClientDeleted) error {
	if event.KlijentID == "" {
		return apperr.Validation("Nedostaje klijent_id")
	}

	n, err := s.repo.CancelForClient(ctx, event.TenantID, event.KlijentID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.WithFields(logrus.Fields{
			"tenant_id":  event.TenantID,
			"klijent_id": event.KlijentID,
			"cancelled":  n,
		}).Info("Cancelled invoices of deleted client")
	}
	return nil
}

func notFound() error {
	return apperr.NotFound("Faktura nije pronađena")
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
