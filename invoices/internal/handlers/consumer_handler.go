package handlers

import (
	"context"

	"epos/invoices/internal/models"
	"epos/invoices/internal/service"
	"epos/pkg/messaging"
)

// ConsumerHandler answers invoice commands and follows client events.
type ConsumerHandler struct {
	service *service.InvoiceService
}

func NewConsumerHandler(service *service.InvoiceService) *ConsumerHandler {
	return &ConsumerHandler{service: service}
}

func (h *ConsumerHandler) Register(router *messaging.Router) {
	router.Handle(messaging.MessageTypeCreateInvoice, h.createInvoice)
	router.Handle(messaging.MessageTypeUpdateInvoice, h.updateInvoice)
	router.Handle(messaging.MessageTypeDeleteInvoice, h.deleteInvoice)
	router.Handle(messaging.MessageTypeClientDeleted, h.clientDeleted)
}

func (h *ConsumerHandler) createInvoice(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var req models.CreateInvoiceRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	invoice, err := h.service.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return messaging.Reply{
		"faktura_id":   invoice.ID,
		"broj_fakture": invoice.BrojFakture,
		"iznos":        invoice.Iznos,
	}, nil
}

func (h *ConsumerHandler) updateInvoice(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var req models.UpdateInvoiceRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	if err := h.service.Update(ctx, req); err != nil {
		return nil, err
	}
	return messaging.Reply{"faktura_id": req.FakturaID}, nil
}

func (h *ConsumerHandler) deleteInvoice(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var req models.DeleteInvoiceRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	if err := h.service.Delete(ctx, req.TenantID, req.FakturaID); err != nil {
		return nil, err
	}
	return messaging.Reply{"faktura_id": req.FakturaID}, nil
}

func (h *ConsumerHandler) clientDeleted(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var event models.ClientDeleted
	if err := msg.Decode(&event); err != nil {
		return nil, err
	}
	return nil, h.service.CancelForClient(ctx, event)
}
