package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConnected      = errors.New("not connected to RabbitMQ")
	ErrShutdown          = errors.New("connection is shutting down")
	ErrBrokerUnavailable = errors.New("message broker unavailable")
)

// Credentials with an empty Username stand for an anonymous connection, which
// leaves the broker defaults in place.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Anonymous() bool {
	return c.Username == ""
}

func (c Credentials) String() string {
	if c.Anonymous() {
		return "anonymous"
	}
	return c.Username
}

type ConnectionConfig struct {
	Host        string
	Port        int
	VHost       string
	Credentials []Credentials
	MaxRetries  int
	RetryDelay  time.Duration
}

// URL builds the AMQP URI for one credential candidate.
func (c ConnectionConfig) URL(cred Credentials) string {
	u := url.URL{
		Scheme: "amqp",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/",
	}
	if !cred.Anonymous() {
		u.User = url.UserPassword(cred.Username, cred.Password)
	}
	if vhost := strings.TrimPrefix(c.VHost, "/"); vhost != "" {
		u.Path = "/" + vhost
		u.RawPath = "/" + url.PathEscape(vhost)
	}
	return u.String()
}

// TopologyFunc declares exchanges and queues on a fresh channel. It runs after
// every successful (re)connect.
type TopologyFunc func(ch *amqp.Channel) error

type Connection struct {
	config         ConnectionConfig
	logger         logrus.FieldLogger
	onConnect      []TopologyFunc
	conn           *amqp.Connection
	channel        *amqp.Channel
	mutex          sync.RWMutex
	closed         bool
	stop           chan struct{}
	reconnectCount int
}

func NewConnection(config ConnectionConfig, logger logrus.FieldLogger) *Connection {
	return &Connection{
		config: config,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// OnConnect registers a topology declaration. Call before Connect.
func (c *Connection) OnConnect(fn TopologyFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// Connect dials the broker with credential fallback and opens the shared
// publishing channel in confirm mode. It returns ErrBrokerUnavailable once the
// retry budget is spent.
func (c *Connection) Connect(ctx context.Context) error {
	c.mutex.RLock()
	closed, connected := c.closed, c.conn != nil && !c.conn.IsClosed()
	c.mutex.RUnlock()
	if closed {
		return ErrShutdown
	}
	if connected {
		return nil
	}

	conn, err := Dial(ctx, c.config, c.logger)
	if err != nil {
		return err
	}

	ch, err := c.setup(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %w", ErrBrokerUnavailable, err)
	}

	c.mutex.Lock()
	if c.closed || (c.conn != nil && !c.conn.IsClosed()) {
		// Lost the race against Close or a concurrent reconnect.
		c.mutex.Unlock()
		conn.Close()
		if c.isClosed() {
			return ErrShutdown
		}
		return nil
	}
	c.conn = conn
	c.channel = ch
	c.reconnectCount = 0
	c.mutex.Unlock()

	go c.handleConnectionClose(conn)

	c.logger.WithField("host", c.config.Host).Info("Connected to RabbitMQ")
	return nil
}

func (c *Connection) setup(conn *amqp.Connection) (*amqp.Channel, error) {
	c.mutex.RLock()
	hooks := append([]TopologyFunc(nil), c.onConnect...)
	c.mutex.RUnlock()

	for _, declare := range hooks {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		err = declare(ch)
		ch.Close()
		if err != nil {
			return nil, fmt.Errorf("declare topology: %w", err)
		}
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return ch, nil
}

func (c *Connection) handleConnectionClose(conn *amqp.Connection) {
	amqpErr, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok {
		// Closed by us.
		return
	}

	c.mutex.Lock()
	if c.conn == conn {
		c.conn = nil
		c.channel = nil
	}
	c.reconnectCount++
	attempt, closed := c.reconnectCount, c.closed
	c.mutex.Unlock()

	if closed {
		return
	}

	c.logger.WithError(amqpErr).WithField("reconnect", attempt).Warn("RabbitMQ connection closed, reconnecting")
	c.KeepConnected(context.Background())
}

// KeepConnected redials until a connection is up, ctx is done or Close is
// called. Each round spends the full Dial budget before waiting RetryDelay.
func (c *Connection) KeepConnected(ctx context.Context) {
	ctx, cancel := c.lifetime(ctx)
	defer cancel()
	c.reconnect(ctx, c.Connect)
}

func (c *Connection) reconnect(ctx context.Context, connect func(context.Context) error) {
	op := func() error {
		if c.isClosed() {
			return backoff.Permanent(ErrShutdown)
		}
		err := connect(ctx)
		if errors.Is(err, ErrShutdown) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WithError(err).WithField("retry_in", wait).Error("Failed to reconnect to RabbitMQ")
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(c.retryDelay()), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil && !errors.Is(err, ErrShutdown) && ctx.Err() == nil {
		c.logger.WithError(err).Error("Gave up reconnecting to RabbitMQ")
	}
}

// lifetime derives a context that is also cancelled by Close.
func (c *Connection) lifetime(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (c *Connection) retryDelay() time.Duration {
	if c.config.RetryDelay <= 0 {
		return time.Second
	}
	return c.config.RetryDelay
}

// Channel returns the shared confirm-mode channel used for publishing.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.closed {
		return nil, ErrShutdown
	}
	if c.channel == nil || c.channel.IsClosed() {
		return nil, ErrNotConnected
	}

	return c.channel, nil
}

// NewChannel opens a dedicated channel, one per consumer so prefetch applies per consumer.
func (c *Connection) NewChannel() (*amqp.Channel, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.closed {
		return nil, ErrShutdown
	}
	if c.conn == nil || c.conn.IsClosed() {
		return nil, ErrNotConnected
	}

	return c.conn.Channel()
}

func (c *Connection) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.conn != nil && !c.conn.IsClosed() && !c.closed
}

func (c *Connection) isClosed() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.closed
}

func (c *Connection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.closed {
		close(c.stop)
	}
	c.closed = true

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}

	return nil
}
