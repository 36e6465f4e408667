package messaging

import (
	"epos/pkg/config"
)

// Factory derives broker settings from the service configuration.
type Factory struct {
	cfg *config.Config
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{cfg: cfg}
}

func (f *Factory) ConnectionConfig() ConnectionConfig {
	creds := []Credentials{{
		Username: f.cfg.RabbitMQUser,
		Password: f.cfg.RabbitMQPassword,
	}}
	if f.cfg.RabbitMQFallbackUser != "" && f.cfg.RabbitMQFallbackUser != f.cfg.RabbitMQUser {
		creds = append(creds, Credentials{
			Username: f.cfg.RabbitMQFallbackUser,
			Password: f.cfg.RabbitMQFallbackPassword,
		})
	}
	if f.cfg.RabbitMQAllowAnonymous {
		creds = append(creds, Credentials{})
	}

	return ConnectionConfig{
		Host:        f.cfg.RabbitMQHost,
		Port:        f.cfg.RabbitMQPort,
		VHost:       f.cfg.RabbitMQVHost,
		Credentials: creds,
		MaxRetries:  f.cfg.RabbitMQMaxRetries,
		RetryDelay:  f.cfg.RabbitMQRetryDelay,
	}
}

func (f *Factory) CommandPublisher() PublisherConfig {
	return PublisherConfig{
		Exchange: f.cfg.CommandExchange,
	}
}

func (f *Factory) commandExchange() ExchangeConfig {
	return ExchangeConfig{
		Name:    f.cfg.CommandExchange,
		Type:    "direct",
		Durable: true,
	}
}

// ServiceTopology declares the command exchange and the service queue bound
// to every type the service handles.
func (f *Factory) ServiceTopology(keys []MessageType) Topology {
	return Topology{
		Exchange: f.commandExchange(),
		Queue: QueueConfig{
			Name:    f.cfg.ServiceQueue,
			Durable: true,
		},
		RoutingKeys: keys,
	}
}

// PublisherTopology declares only the command exchange, for services that
// publish events but consume nothing.
func (f *Factory) PublisherTopology() Topology {
	return Topology{Exchange: f.commandExchange()}
}

// ReplyTopology declares the command exchange and the gateway reply queue.
func (f *Factory) ReplyTopology() Topology {
	return Topology{
		Exchange: f.commandExchange(),
		Queue: QueueConfig{
			Name:    f.cfg.ReplyQueue,
			Durable: true,
		},
	}
}

func (f *Factory) ServiceConsumer() ConsumerConfig {
	return ConsumerConfig{
		QueueName:      f.cfg.ServiceQueue,
		ConsumerTag:    f.cfg.ServiceName + "-service",
		PrefetchCount:  1,
		HandlerTimeout: f.cfg.RequestTimeout,
		RetryDelay:     f.cfg.RabbitMQRetryDelay,
	}
}

func (f *Factory) ReplyConsumer() ConsumerConfig {
	return ConsumerConfig{
		QueueName:      f.cfg.ReplyQueue,
		ConsumerTag:    f.cfg.ServiceName + "-replies",
		PrefetchCount:  1,
		HandlerTimeout: f.cfg.RequestTimeout,
		RetryDelay:     f.cfg.RabbitMQRetryDelay,
	}
}
