package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"epos/pkg/apperr"
)

// CommandHandler handles one message type. A nil reply means nothing is sent back.
type CommandHandler func(ctx context.Context, msg Message) (Reply, error)

type ReplyPublisher interface {
	PublishReply(ctx context.Context, replyTo, correlationID string, reply Reply) error
}

// Router dispatches deliveries by message type and answers on the reply queue
// named by the delivery.
type Router struct {
	handlers map[MessageType]CommandHandler
	replies  ReplyPublisher
	logger   logrus.FieldLogger
}

func NewRouter(replies ReplyPublisher, logger logrus.FieldLogger) *Router {
	return &Router{
		handlers: make(map[MessageType]CommandHandler),
		replies:  replies,
		logger:   logger,
	}
}

func (r *Router) Handle(t MessageType, h CommandHandler) {
	r.handlers[t] = h
}

// RoutingKeys lists the handled types, for binding the service queue.
func (r *Router) RoutingKeys() []MessageType {
	keys := make([]MessageType, 0, len(r.handlers))
	for t := range r.handlers {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Deliver is a MessageHandler. Business failures are answered and acked;
// undecodable messages are answered when possible and dropped; anything else
// is returned so the delivery is requeued.
func (r *Router) Deliver(ctx context.Context, d amqp.Delivery) error {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		err = Malformed(fmt.Errorf("decode envelope: %w", err))
		r.reply(ctx, d, msg, FailureReply(apperr.Validation("Neispravan format poruke")))
		return err
	}
	if msg.Type == "" {
		msg.Type = MessageType(d.Type)
	}

	log := r.logger.WithFields(logrus.Fields{
		"type":       msg.Type,
		"message_id": msg.ID,
	})

	handler, ok := r.handlers[msg.Type]
	if !ok {
		r.reply(ctx, d, msg, FailureReply(apperr.Validation("Nepoznat tip poruke: %s", msg.Type)))
		return Malformed(fmt.Errorf("no handler for %q", msg.Type))
	}

	reply, err := handler(ctx, msg)
	if err != nil {
		if _, isBusiness := apperr.As(err); isBusiness {
			log.WithError(err).Info("Command rejected")
			r.reply(ctx, d, msg, FailureReply(err))
			return nil
		}
		if IsMalformed(err) {
			r.reply(ctx, d, msg, FailureReply(apperr.Validation("Neispravni podaci")))
			return err
		}
		return err
	}

	if reply != nil {
		r.reply(ctx, d, msg, reply)
	}
	log.Debug("Command handled")
	return nil
}

// reply is best effort: once the command has taken effect a lost reply only
// makes the waiting caller time out, while a redelivery would repeat the work.
func (r *Router) reply(ctx context.Context, d amqp.Delivery, msg Message, reply Reply) {
	if d.ReplyTo == "" {
		return
	}
	correlationID := d.CorrelationId
	if correlationID == "" {
		correlationID = msg.ID
	}
	if correlationID == "" {
		r.logger.WithField("reply_to", d.ReplyTo).Warn("Cannot reply without a correlation id")
		return
	}

	if err := r.replies.PublishReply(ctx, d.ReplyTo, correlationID, reply); err != nil {
		r.logger.WithError(err).WithField("correlation_id", correlationID).Error("Failed to publish reply")
	}
}
