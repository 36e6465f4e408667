package handlers

import (
	"context"

	"epos/clients/internal/models"
	"epos/clients/internal/service"
	"epos/pkg/messaging"
)

// ConsumerHandler answers client commands arriving over the broker.
type ConsumerHandler struct {
	service *service.ClientService
}

func NewConsumerHandler(service *service.ClientService) *ConsumerHandler {
	return &ConsumerHandler{service: service}
}

func (h *ConsumerHandler) Register(router *messaging.Router) {
	router.Handle(messaging.MessageTypeCreateClient, h.createClient)
	router.Handle(messaging.MessageTypeUpdateClient, h.updateClient)
	router.Handle(messaging.MessageTypeDeleteClient, h.deleteClient)
}

func (h *ConsumerHandler) createClient(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var req models.CreateClientRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	client, err := h.service.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return messaging.Reply{"klijent_id": client.ID, "naziv": client.Naziv}, nil
}

func (h *ConsumerHandler) updateClient(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var req models.UpdateClientRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	if err := h.service.Update(ctx, req); err != nil {
		return nil, err
	}
	return messaging.Reply{"klijent_id": req.KlijentID}, nil
}

func (h *ConsumerHandler) deleteClient(ctx context.Context, msg messaging.Message) (messaging.Reply, error) {
	var req models.DeleteClientRequest
	if err := msg.Decode(&req); err != nil {
		return nil, err
	}

	if err := h.service.Delete(ctx, req.TenantID, req.KlijentID); err != nil {
		return nil, err
	}
	return messaging.Reply{"klijent_id": req.KlijentID}, nil
}
