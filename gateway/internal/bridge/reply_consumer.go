package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"epos/pkg/correlation"
	"epos/pkg/messaging"
)

// ReplyConsumer feeds replies from the reply queue into the tracker.
type ReplyConsumer struct {
	tracker *correlation.Tracker
	logger  logrus.FieldLogger
}

func NewReplyConsumer(tracker *correlation.Tracker, logger logrus.FieldLogger) *ReplyConsumer {
	return &ReplyConsumer{
		tracker: tracker,
		logger:  logger,
	}
}

// Handle resolves the slot named by the delivery's correlation id. Every
// parseable reply is acked, matched or not; an unparseable body is dropped.
func (r *ReplyConsumer) Handle(ctx context.Context, d amqp.Delivery) error {
	var reply messaging.Reply
	if err := json.Unmarshal(d.Body, &reply); err != nil {
		return messaging.Malformed(fmt.Errorf("decode reply: %w", err))
	}
	if reply == nil {
		return messaging.Malformed(errors.New("decode reply: empty body"))
	}

	log := r.logger.WithField("correlation_id", d.CorrelationId)

	if d.CorrelationId == "" {
		log.Warn("Reply without correlation id dropped")
		return nil
	}

	if !r.tracker.Resolve(d.CorrelationId, reply) {
		log.Info("Unmatched reply dropped")
		return nil
	}

	log.Debug("Reply matched")
	return nil
}
