package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"restock-service/internal/models"
	"restock-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing document change events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishProductUpdated publishes a ProductUpdated event keyed by product so
// changes to one product stay ordered within a partition
func (ep *EventPublisher) PublishProductUpdated(ctx context.Context, event *models.ProductUpdatedEvent) error {
	key := fmt.Sprintf("product-%s", productID(event))
	return ep.producer.PublishEvent(ctx, key, event)
}

func productID(event *models.ProductUpdatedEvent) string {
	if event.After != nil {
		return event.After.ID
	}
	if event.Before != nil {
		return event.Before.ID
	}
	return ""
}

// EventHandler handles incoming events
type EventHandler struct {
	onProductUpdated       func(context.Context, *models.ProductUpdatedEvent) error
	onPurchaseOrderUpdated func(context.Context, *models.PurchaseOrderUpdatedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnProductUpdated registers a handler for ProductUpdated events
func (eh *EventHandler) OnProductUpdated(handler func(context.Context, *models.ProductUpdatedEvent) error) {
	eh.onProductUpdated = handler
}

// OnPurchaseOrderUpdated registers a handler for PurchaseOrderUpdated events
func (eh *EventHandler) OnPurchaseOrderUpdated(handler func(context.Context, *models.PurchaseOrderUpdatedEvent) error) {
	eh.onPurchaseOrderUpdated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	var err error
	switch baseEvent.EventType {
	case models.EventTypeProductUpdated:
		if eh.onProductUpdated == nil {
			return nil
		}
		var event models.ProductUpdatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal ProductUpdated event: %w", err)
		}
		err = eh.onProductUpdated(ctx, &event)

	case models.EventTypePurchaseOrderUpdated:
		if eh.onPurchaseOrderUpdated == nil {
			return nil
		}
		var event models.PurchaseOrderUpdatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal PurchaseOrderUpdated event: %w", err)
		}
		err = eh.onPurchaseOrderUpdated(ctx, &event)

	default:
		logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
		return nil
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	util.EventsHandledTotal.WithLabelValues(baseEvent.EventType, outcome).Inc()
	return err
}
