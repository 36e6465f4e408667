package handlers

import (
	"context"

	"epos/expenses/internal/models"
	"epos/expenses/internal/service"
	"epos/pkg/messaging"
)

type ConsumerHandler struct {
	service *service.ExpenseService
}

func NewConsumerHandler(service *service.ExpenseService) *ConsumerHandler {
	return &ConsumerHandler{service: service}
}

func (h *ConsumerHandler) Register(router *messaging.Router) {
	router.Handle(messaging.MessageTypeCreateExpense, h.createExpense)
	router.Handle(messaging.MessageTypeUpdateExpense, h.updateExpense)
	router.Handle(messaging.MessageTypeDeleteExpense, h.deleteExpense)
	router.Handle(messaging.MessageTypeInvoiceCreated, h.invoiceCreated)
}

func (h *ConsumerHandler) createExpense(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var req models.CreateExpenseRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	expense, err := h.service.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return messaging.Reply{
		"trosak_id": expense.ID,
		"naziv":     expense.Naziv,
		"iznos":     expense.Iznos,
	}, nil
}

func (h *ConsumerHandler) updateExpense(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var req models.UpdateExpenseRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	if err := h.service.Update(ctx, req); err != nil {
		return nil, err
	}
	return messaging.Reply{"trosak_id": req.TrosakID}, nil
}

func (h *ConsumerHandler) deleteExpense(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var req models.DeleteExpenseRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	if err := h.service.Delete(ctx, req.TenantID, req.TrosakID); err != nil {
		return nil, err
	}
	return messaging.Reply{"trosak_id": req.TrosakID}, nil
}

func (h *ConsumerHandler) invoiceCreated(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var event models.InvoiceCreated
	if err := msg.Decode(&event); err != nil {
		return nil, err
	}
	return nil, h.service.BookTransport(ctx, event)
}
