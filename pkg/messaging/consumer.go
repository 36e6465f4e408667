package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type ConsumerConfig struct {
	QueueName      string
	ConsumerTag    string
	PrefetchCount  int
	HandlerTimeout time.Duration
	RetryDelay     time.Duration
}

// MessageHandler processes one delivery. The consumer acks on nil, drops errors
// marked with Malformed, and requeues every other error.
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

type malformedError struct {
	err error
}

func (e *malformedError) Error() string {
	return "malformed message: " + e.err.Error()
}

func (e *malformedError) Unwrap() error {
	return e.err
}

// Malformed marks err as a message that can never be processed.
func Malformed(err error) error {
	if err == nil || IsMalformed(err) {
		return err
	}
	return &malformedError{err: err}
}

func IsMalformed(err error) bool {
	var m *malformedError
	return errors.As(err, &m)
}

type Consumer struct {
	conn    *Connection
	config  ConsumerConfig
	handler MessageHandler
	logger  logrus.FieldLogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func NewConsumer(conn *Connection, config ConsumerConfig, handler MessageHandler, logger logrus.FieldLogger) *Consumer {
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	return &Consumer{
		conn:    conn,
		config:  config,
		handler: handler,
		logger:  logger.WithField("queue", config.QueueName),
	}
}

// Start consumes until ctx is cancelled or Stop is called, reattaching after
// channel or connection loss.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.cancel = cancel
	c.mu.Unlock()

	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrShutdown) {
			return err
		}
		c.logger.WithError(err).WithField("retry_in", c.config.RetryDelay).Warn("Consumer interrupted")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.config.RetryDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	ch, err := c.conn.NewChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if c.config.PrefetchCount > 0 {
		if err := ch.Qos(c.config.PrefetchCount, 0, false); err != nil {
			return err
		}
	}

	msgs, err := ch.Consume(
		c.config.QueueName,
		c.config.ConsumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("Started consuming")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := c.handleMessage(ctx, msg); err != nil {
				c.logger.WithError(err).Error("Failed to settle delivery")
			}
		}
	}
}

// handleMessage runs the handler and settles the delivery. The returned error
// is about acknowledging, not about the handler.
func (c *Consumer) handleMessage(ctx context.Context, delivery amqp.Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.HandlerTimeout)
	defer cancel()

	err := c.handler(ctx, delivery)
	switch {
	case err == nil:
		return delivery.Ack(false)
	case IsMalformed(err):
		c.logger.WithError(err).WithField("correlation_id", delivery.CorrelationId).Warn("Dropping malformed message")
		return delivery.Nack(false, false)
	default:
		c.logger.WithError(err).WithField("correlation_id", delivery.CorrelationId).Error("Handler failed, requeueing")
		return delivery.Nack(false, true)
	}
}

// Stop ends Start, including a Start that has not begun yet.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
}
