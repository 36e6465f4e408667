package messaging

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// QueueManager owns one connection, its publisher and the consumers started on it.
type QueueManager struct {
	conn      *Connection
	publisher *Publisher
	consumers map[string]*Consumer
	logger    logrus.FieldLogger
	mutex     sync.RWMutex
	wg        sync.WaitGroup
}

func NewQueueManager(conn *Connection, publisher PublisherConfig, logger logrus.FieldLogger) *QueueManager {
	return &QueueManager{
		conn:      conn,
		publisher: NewPublisher(conn, publisher, logger),
		consumers: make(map[string]*Consumer),
		logger:    logger,
	}
}

func (m *QueueManager) Connection() *Connection {
	return m.conn
}

func (m *QueueManager) Publisher() *Publisher {
	return m.publisher
}

// RegisterConsumer creates a consumer on the managed connection under key.
func (m *QueueManager) RegisterConsumer(key string, config ConsumerConfig, handler MessageHandler) *Consumer {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	consumer := NewConsumer(m.conn, config, handler, m.logger)
	m.consumers[key] = consumer
	return consumer
}

func (m *QueueManager) StartAllConsumers(ctx context.Context) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for key, consumer := range m.consumers {
		m.wg.Add(1)
		go func(k string, c *Consumer) {
			defer m.wg.Done()
			if err := c.Start(ctx); err != nil {
				m.logger.WithError(err).WithField("consumer", k).Error("Consumer stopped")
			}
		}(key, consumer)
	}
}

func (m *QueueManager) StopAllConsumers() {
	m.mutex.RLock()
	for _, consumer := range m.consumers {
		consumer.Stop()
	}
	m.mutex.RUnlock()

	m.wg.Wait()
}

func (m *QueueManager) Close() error {
	m.StopAllConsumers()
	return m.conn.Close()
}
