package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"canteen-system/internal/logger"
	"canteen-system/internal/models"
)

const publishTimeout = 5 * time.Second

// ErrNotConnected is returned while the broker connection is down; a reconnect runs in the background
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// channelPublisher is the subset of *amqp091.Channel used to publish
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Publisher handles event publishing to RabbitMQ
type Publisher struct {
	conn    *Connection
	channel func() (channelPublisher, error)
	logger  *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	p := &Publisher{conn: conn, logger: log}
	p.channel = func() (channelPublisher, error) {
		if conn.IsClosed() {
			conn.ReconnectInBackground()
			return nil, ErrNotConnected
		}
		ch := conn.Channel()
		if ch == nil {
			return nil, ErrNotConnected
		}
		return ch, nil
	}
	return p
}

// PublishInventoryChanged publishes an inventory event for an outlet
func (p *Publisher) PublishInventoryChanged(ctx context.Context, msg *models.InventoryChangedMessage) error {
	return p.publish(ctx, models.InventoryRoutingKey(msg.OutletID), msg)
}

// PublishOrderStatus publishes an order status event
func (p *Publisher) PublishOrderStatus(ctx context.Context, msg *models.StatusUpdateMessage) error {
	return p.publish(ctx, models.StatusRoutingKey(msg.NewStatus), msg)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, EventsExchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	p.logger.Debug("message_published", "Published event", "", map[string]interface{}{
		"exchange":     EventsExchange,
		"routing_key":  routingKey,
		"message_size": len(body),
	})
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// eventPublisher is what the Notifier needs from a Publisher
type eventPublisher interface {
	PublishInventoryChanged(ctx context.Context, msg *models.InventoryChangedMessage) error
	PublishOrderStatus(ctx context.Context, msg *models.StatusUpdateMessage) error
}

// DefaultNotifierBuffer is how many events may wait for the broker before new ones are dropped
const DefaultNotifierBuffer = 256

type event struct {
	requestID string
	inventory *models.InventoryChangedMessage
	status    *models.StatusUpdateMessage
}

// Notifier publishes events on a best-effort basis. Callers only enqueue; a background
// loop publishes. When the queue is full the event is dropped and logged.
type Notifier struct {
	publisher eventPublisher
	logger    *logger.Logger
	events    chan event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotifier creates a new best-effort notifier holding up to buffer pending events
func NewNotifier(publisher eventPublisher, log *logger.Logger, buffer int) *Notifier {
	if buffer < 1 {
		buffer = DefaultNotifierBuffer
	}
	return &Notifier{
		publisher: publisher,
		logger:    log,
		events:    make(chan event, buffer),
	}
}

// Start runs the publish loop until ctx is done or Stop is called
func (n *Notifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-ctx.Done():
				n.flush()
				return
			case e := <-n.events:
				n.deliver(e)
			}
		}
	}()
}

// Stop ends the publish loop after handing over what is already queued
func (n *Notifier) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}

// InventoryChanged announces that an outlet's menu changed
func (n *Notifier) InventoryChanged(ctx context.Context, msg *models.InventoryChangedMessage) {
	n.enqueue(event{requestID: logger.RequestIDFrom(ctx), inventory: msg})
}

// OrderStatusChanged announces an order status change
func (n *Notifier) OrderStatusChanged(ctx context.Context, msg *models.StatusUpdateMessage) {
	n.enqueue(event{requestID: logger.RequestIDFrom(ctx), status: msg})
}

func (n *Notifier) enqueue(e event) {
	select {
	case n.events <- e:
	default:
		n.logger.Error("event_dropped", "Event queue full, dropping event", e.requestID, nil, e.fields())
	}
}

func (n *Notifier) flush() {
	for {
		select {
		case e := <-n.events:
			n.deliver(e)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(e event) {
	ctx := logger.WithRequestID(context.Background(), e.requestID)

	if e.inventory != nil {
		if err := n.publisher.PublishInventoryChanged(ctx, e.inventory); err != nil {
			n.logger.Error("inventory_event_failed", "Failed to publish inventory event", e.requestID, err, e.fields())
		}
		return
	}
	if err := n.publisher.PublishOrderStatus(ctx, e.status); err != nil {
		n.logger.Error("status_event_failed", "Failed to publish order status event", e.requestID, err, e.fields())
	}
}

func (e event) fields() map[string]interface{} {
	if e.inventory != nil {
		return map[string]interface{}{
			"outlet_id": e.inventory.OutletID.String(),
			"reason":    e.inventory.Reason,
		}
	}
	return map[string]interface{}{
		"order_reference": e.status.OrderReference,
		"new_status":      string(e.status.NewStatus),
	}
}
