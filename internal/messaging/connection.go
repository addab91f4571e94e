package messaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"canteen-system/internal/config"
	"canteen-system/internal/logger"
)

const (
	EventsExchange     = "canteen_events"
	NotificationsQueue = "notifications_queue"
)

// Connection wraps RabbitMQ connection with reconnection logic.
// Dial attempts and retry waits happen outside mu so readers never queue behind a reconnect.
type Connection struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string

	reconnecting atomic.Bool
	done         chan struct{}
	closeOnce    sync.Once
}

const (
	maxConnectAttempts = 5
	connectBackoff     = 2 * time.Second
)

// New creates a new RabbitMQ connection
func New(cfg *config.Config, log *logger.Logger) (*Connection, error) {
	conn := newConnection(cfg.RabbitMQURL(), log)

	if err := conn.connect(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return conn, nil
}

func newConnection(url string, log *logger.Logger) *Connection {
	return &Connection{
		logger: log,
		url:    url,
		done:   make(chan struct{}),
	}
}

// connect establishes connection to RabbitMQ with retry logic.
// It gives up when ctx is done or the connection is closed.
func (c *Connection) connect(ctx context.Context) error {
	var err error

	for i := 0; i < maxConnectAttempts; i++ {
		var (
			conn *amqp091.Connection
			ch   *amqp091.Channel
		)
		conn, ch, err = c.dial()
		if err == nil {
			c.mu.Lock()
			defer c.mu.Unlock()
			select {
			case <-c.done:
				ch.Close()
				conn.Close()
				return fmt.Errorf("connection closed")
			default:
			}
			c.close()
			c.conn, c.channel = conn, ch
			return nil
		}

		if i < maxConnectAttempts-1 {
			wait := time.Duration(i+1) * connectBackoff
			c.logger.Error("rabbitmq_connection_failed",
				fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", wait),
				"startup", err, nil)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return fmt.Errorf("connection closed")
			}
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxConnectAttempts, err)
}

// dial makes one connection attempt and declares the topology on it
func (c *Connection) dial() (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := setupTopology(ch); err != nil {
		c.logger.Error("rabbitmq_setup_failed", "Failed to set up topology", "startup", err, nil)
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// topologyDeclarer is the subset of *amqp091.Channel used to declare topology
type topologyDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
}

// setupTopology declares the events exchange and the notifications queue
func setupTopology(ch topologyDeclarer) error {
	err := ch.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", EventsExchange, err)
	}

	_, err = ch.QueueDeclare(
		NotificationsQueue, // name
		true,               // durable
		false,              // delete when unused
		false,              // exclusive
		false,              // no-wait
		amqp091.Table{
			"x-message-ttl": int32(300000),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s: %w", NotificationsQueue, err)
	}

	for _, key := range []string{"inventory.*", "order.*"} {
		if err := ch.QueueBind(NotificationsQueue, key, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s with routing key %s: %w", NotificationsQueue, key, err)
		}
	}

	return nil
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Close closes the connection and stops any reconnect in progress
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *Connection) close() error {
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

// IsClosed checks if the connection is closed
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil || c.conn.IsClosed()
}

// Reconnect replaces the connection, blocking until it succeeds or attempts run out
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	c.close()
	c.mu.Unlock()
	return c.connect(ctx)
}

// ReconnectInBackground starts a reconnect unless one is already running and returns at once
func (c *Connection) ReconnectInBackground() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.reconnecting.Store(false)
		if err := c.connect(context.Background()); err != nil {
			c.logger.Error("rabbitmq_reconnect_failed", "Background reconnect gave up", "", err, nil)
			return
		}
		c.logger.Info("rabbitmq_reconnected", "Reconnected to RabbitMQ", "", nil)
	}()
}
