package notification

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"canteen-system/internal/logger"
	"canteen-system/internal/messaging"
	"canteen-system/internal/models"
)

const timestampLayout = "2006-01-02 15:04:05"

// messageSource is the part of *messaging.Consumer the subscriber drives
type messageSource interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// Subscriber prints canteen events as they arrive
type Subscriber struct {
	consumer messageSource
	logger   *logger.Logger
	out      io.Writer
}

// NewSubscriber creates a new notification subscriber writing to stdout
func NewSubscriber(consumer messageSource, log *logger.Logger) *Subscriber {
	return &Subscriber{
		consumer: consumer,
		logger:   log,
		out:      os.Stdout,
	}
}

// Start consumes events until ctx is cancelled
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	err := s.consumer.StartConsuming(ctx, s.handleEvent)

	s.logger.Info("graceful_shutdown", "Stopping notification subscriber", requestID, nil)
	if closeErr := s.consumer.Close(); closeErr != nil {
		s.logger.Error("consumer_close_failed", "Failed to close consumer", requestID, closeErr, nil)
	}

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// handleEvent dispatches one delivery by routing key
func (s *Subscriber) handleEvent(ctx context.Context, routingKey string, body []byte) error {
	switch {
	case strings.HasPrefix(routingKey, "order."):
		var msg models.StatusUpdateMessage
		if err := messaging.ParseMessage(body, &msg); err != nil {
			return fmt.Errorf("failed to parse status update: %w", err)
		}
		s.display(routingKey, formatStatusUpdate(&msg), map[string]interface{}{
			"order_reference": msg.OrderReference,
			"outlet_id":       msg.OutletID.String(),
			"old_status":      string(msg.OldStatus),
			"new_status":      string(msg.NewStatus),
		})

	case strings.HasPrefix(routingKey, "inventory."):
		var msg models.InventoryChangedMessage
		if err := messaging.ParseMessage(body, &msg); err != nil {
			return fmt.Errorf("failed to parse inventory event: %w", err)
		}
		s.display(routingKey, formatInventoryChange(&msg), map[string]interface{}{
			"outlet_id": msg.OutletID.String(),
			"reason":    msg.Reason,
			"items":     len(msg.ItemIDs),
		})

	default:
		s.logger.Debug("event_ignored", "Ignoring event with unknown routing key", "", map[string]interface{}{
			"routing_key": routingKey,
		})
	}
	return nil
}

func (s *Subscriber) display(routingKey, line string, fields map[string]interface{}) {
	fmt.Fprintln(s.out, line)

	fields["routing_key"] = routingKey
	s.logger.Info("notification_displayed", "Notification displayed", "", fields)
}

func formatStatusUpdate(msg *models.StatusUpdateMessage) string {
	ts := msg.Timestamp.Format(timestampLayout)

	switch msg.NewStatus {
	case models.StatusPending:
		return fmt.Sprintf("[%s] Order %s is waiting for organization approval.", ts, msg.OrderReference)
	case models.StatusApproved:
		if msg.OldStatus == "" {
			return fmt.Sprintf("[%s] Order %s placed and confirmed.", ts, msg.OrderReference)
		}
		return fmt.Sprintf("[%s] Order %s was approved.", ts, msg.OrderReference)
	case models.StatusCompleted:
		return fmt.Sprintf("[%s] Order %s has been handed over.", ts, msg.OrderReference)
	case models.StatusRejected:
		return fmt.Sprintf("[%s] Order %s was rejected.", ts, msg.OrderReference)
	case models.StatusCancelled:
		return fmt.Sprintf("[%s] Order %s has been cancelled.", ts, msg.OrderReference)
	default:
		return fmt.Sprintf("[%s] Order %s status changed from '%s' to '%s'.", ts, msg.OrderReference, msg.OldStatus, msg.NewStatus)
	}
}

func formatInventoryChange(msg *models.InventoryChangedMessage) string {
	return fmt.Sprintf("[%s] Menu of outlet %s changed (%s, %d items).",
		msg.Timestamp.Format(timestampLayout), msg.OutletID, msg.Reason, len(msg.ItemIDs))
}
