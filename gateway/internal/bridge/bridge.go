// Package bridge lets an HTTP handler wait for the reply to a command sent
// over the broker.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"epos/pkg/correlation"
	"epos/pkg/messaging"
)

const timeoutMessage = "Request timeout"

// TimeoutReply is the failure body returned when no reply arrives in time.
func TimeoutReply() messaging.Reply {
	return messaging.Reply{"error": timeoutMessage}
}

type CommandPublisher interface {
	IsConnected() bool
	PublishCommand(ctx context.Context, msg messaging.Message, replyTo string) error
}

type Bridge struct {
	publisher  CommandPublisher
	tracker    *correlation.Tracker
	replyQueue string
	timeout    time.Duration
	newID      func() string
	logger     logrus.FieldLogger
}

func New(publisher CommandPublisher, tracker *correlation.Tracker, replyQueue string, timeout time.Duration, logger logrus.FieldLogger) *Bridge {
	return &Bridge{
		publisher:  publisher,
		tracker:    tracker,
		replyQueue: replyQueue,
		timeout:    timeout,
		newID:      uuid.NewString,
		logger:     logger,
	}
}

// SendAndWait publishes a command and blocks until its reply arrives or timeout
// elapses. A zero timeout uses the configured default.
//
// The reply body is returned verbatim; callers check Failure to tell a business
// error from success. When no reply arrives in time the result is TimeoutReply
// together with an error wrapping correlation.ErrTimedOut. A broker that is down
// yields messaging.ErrBrokerUnavailable and no pending slot is left behind.
func (b *Bridge) SendAndWait(ctx context.Context, t messaging.MessageType, payload interface{}, timeout time.Duration) (messaging.Reply, error) {
	if timeout <= 0 {
		timeout = b.timeout
	}

	if !b.publisher.IsConnected() {
		return nil, messaging.ErrBrokerUnavailable
	}

	id := b.newID()
	msg, err := messaging.NewMessageWithID(id, t, payload)
	if err != nil {
		return nil, err
	}

	if err := b.tracker.Register(id); err != nil {
		return nil, err
	}

	log := b.logger.WithFields(logrus.Fields{
		"type":           t,
		"correlation_id": id,
	})

	if err := b.publisher.PublishCommand(ctx, msg, b.replyQueue); err != nil {
		b.tracker.Remove(id)
		if !errors.Is(err, messaging.ErrBrokerUnavailable) {
			err = fmt.Errorf("%w: %w", messaging.ErrBrokerUnavailable, err)
		}
		log.WithError(err).Error("Failed to publish command")
		return nil, err
	}

	reply, err := b.tracker.Await(ctx, id, time.Now().Add(timeout))
	if err != nil {
		if errors.Is(err, correlation.ErrTimedOut) {
			log.WithError(err).Warn("No reply before deadline")
			return TimeoutReply(), err
		}
		return nil, err
	}

	log.Debug("Reply received")
	return reply, nil
}

// Pending reports how many requests are waiting for a reply.
func (b *Bridge) Pending() int {
	return b.tracker.Len()
}
