package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type PublisherConfig struct {
	Exchange       string
	ConfirmTimeout time.Duration
}

type Publisher struct {
	conn   *Connection
	config PublisherConfig
	logger logrus.FieldLogger
}

// NewPublisher creates a publisher over the shared channel of conn.
func NewPublisher(conn *Connection, config PublisherConfig, logger logrus.FieldLogger) *Publisher {
	if config.ConfirmTimeout <= 0 {
		config.ConfirmTimeout = 5 * time.Second
	}
	return &Publisher{
		conn:   conn,
		config: config,
		logger: logger,
	}
}

func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// PublishCommand sends msg to the command exchange, routed by its type. The
// broker-level correlation id is the message id; replyTo names the queue the
// consumer answers on.
func (p *Publisher) PublishCommand(ctx context.Context, msg Message, replyTo string) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.publish(ctx, p.config.Exchange, string(msg.Type), amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		MessageId:     msg.ID,
		CorrelationId: msg.ID,
		ReplyTo:       replyTo,
		Type:          string(msg.Type),
		Timestamp:     time.Now(),
		DeliveryMode:  amqp.Persistent,
	})
}

// PublishEvent sends msg without a reply destination.
func (p *Publisher) PublishEvent(ctx context.Context, msg Message) error {
	return p.PublishCommand(ctx, msg, "")
}

// PublishReply answers a command through the default exchange, straight to the
// reply queue, carrying the correlation id out of band.
func (p *Publisher) PublishReply(ctx context.Context, replyTo, correlationID string, reply Reply) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}

	return p.publish(ctx, "", replyTo, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		CorrelationId: correlationID,
		Timestamp:     time.Now(),
		DeliveryMode:  amqp.Persistent,
	})
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, publishing amqp.Publishing) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, publishing)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}
	if confirm == nil {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.config.ConfirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("%w: waiting for publisher confirm: %w", ErrBrokerUnavailable, err)
	}
	if !acked {
		return fmt.Errorf("%w: broker rejected message for %q", ErrBrokerUnavailable, routingKey)
	}

	p.logger.WithFields(logrus.Fields{
		"exchange":       exchange,
		"routing_key":    routingKey,
		"correlation_id": publishing.CorrelationId,
	}).Debug("Message published")
	return nil
}

// channel returns the publishing channel. A lost connection fails fast; the
// connection redials in the background.
func (p *Publisher) channel() (*amqp.Channel, error) {
	ch, err := p.conn.Channel()
	if errors.Is(err, ErrNotConnected) {
		return nil, fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}
	return ch, err
}

// channelDeclarer is the part of *amqp.Channel used to declare topology.
type channelDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareExchange declares a durable exchange when durable is set.
func DeclareExchange(ch channelDeclarer, cfg ExchangeConfig) error {
	return ch.ExchangeDeclare(
		cfg.Name,
		cfg.Type,
		cfg.Durable,
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
}

func DeclareQueue(ch channelDeclarer, cfg QueueConfig) error {
	_, err := ch.QueueDeclare(
		cfg.Name,
		cfg.Durable,
		cfg.AutoDelete,
		cfg.Exclusive,
		false, // noWait
		nil,
	)
	return err
}

// BindQueue routes messages published to exchange with routingKey into queue.
func BindQueue(ch channelDeclarer, queue, routingKey, exchange string) error {
	return ch.QueueBind(
		queue,
		routingKey,
		exchange,
		false, // noWait
		nil,
	)
}

// Declare applies t: exchange first, then the queue and its bindings.
func (t Topology) Declare(ch channelDeclarer) error {
	if t.Exchange.Name != "" {
		if err := DeclareExchange(ch, t.Exchange); err != nil {
			return fmt.Errorf("declare exchange %s: %w", t.Exchange.Name, err)
		}
	}
	if t.Queue.Name == "" {
		return nil
	}
	if err := DeclareQueue(ch, t.Queue); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue.Name, err)
	}
	for _, key := range t.RoutingKeys {
		if err := BindQueue(ch, t.Queue.Name, string(key), t.Exchange.Name); err != nil {
			return fmt.Errorf("bind %s to %s: %w", t.Queue.Name, key, err)
		}
	}
	return nil
}

// Func adapts t to a connection hook.
func (t Topology) Func() TopologyFunc {
	return func(ch *amqp.Channel) error {
		return t.Declare(ch)
	}
}
