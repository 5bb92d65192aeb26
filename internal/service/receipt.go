package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restock-service/internal/models"
	"restock-service/internal/store"
	"restock-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var errVariantMissing = errors.New("variant not found")

// ReceiptHandler applies received purchase orders to inventory
type ReceiptHandler struct {
	store     Store
	publisher ProductEventPublisher
	guard     eventGuard
	logger    *zap.Logger
}

// NewReceiptHandler creates a new purchase order receipt handler. publisher
// may be nil, in which case restocks are not re-announced.
func NewReceiptHandler(store Store, publisher ProductEventPublisher, deduper EventDeduper) *ReceiptHandler {
	logger := util.ComponentLogger("receipt-handler")
	return &ReceiptHandler{
		store:     store,
		publisher: publisher,
		guard:     eventGuard{deduper: deduper, logger: logger},
		logger:    logger,
	}
}

// HandlePurchaseOrderUpdated fires only when an order moves into the received
// state. The stored order is re-read and its quantity applied. Missing
// orders, products or variants are logged and the event is dropped.
func (h *ReceiptHandler) HandlePurchaseOrderUpdated(ctx context.Context, event *models.PurchaseOrderUpdatedEvent) (err error) {
	ctx, span := util.StartSpan(ctx, "ReceiptHandler.HandlePurchaseOrderUpdated",
		attribute.String("event.id", event.EventID))
	defer func() { util.EndSpan(span, err) }()

	if event.Before == nil || event.After == nil {
		return nil
	}
	if event.Before.Status == models.PurchaseOrderReceived || event.After.Status != models.PurchaseOrderReceived {
		return nil
	}
	if h.guard.seen(ctx, event.EventID) {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	order, err := h.store.GetPurchaseOrder(ctx, event.After.ID)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("Received purchase order no longer exists",
			zap.String("purchase_order_id", event.After.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load purchase order %s: %w", event.After.ID, err)
	}
	if order.Quantity <= 0 {
		h.logger.Warn("Ignoring received purchase order with non-positive quantity",
			zap.String("purchase_order_id", order.ID),
			zap.Int("quantity", order.Quantity))
		return nil
	}

	var before, after *models.Product
	target := "product"
	if order.VariantID != nil {
		target = "variant"
		before, after, err = h.receiveVariant(ctx, order)
	} else {
		before, after, err = h.receiveProduct(ctx, order)
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errVariantMissing):
		h.logger.Warn("Received purchase order references missing item",
			zap.String("purchase_order_id", order.ID),
			zap.String("product_id", order.ProductID),
			zap.Stringp("variant_id", order.VariantID),
			zap.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("failed to apply purchase order %s: %w", order.ID, err)
	}

	// stock is applied; a redelivery must not apply it again
	h.guard.mark(ctx, event.EventID)
	util.ReceiptsAppliedTotal.WithLabelValues(target).Inc()

	h.logger.Info("Purchase order received",
		zap.String("purchase_order_id", order.ID),
		zap.String("product_id", order.ProductID),
		zap.Stringp("variant_id", order.VariantID),
		zap.Int("quantity", order.Quantity))

	h.announce(ctx, before, after)
	return nil
}

func (h *ReceiptHandler) receiveVariant(ctx context.Context, order *models.PurchaseOrder) (*models.Product, *models.Product, error) {
	return h.store.MutateProductNow(ctx, order.ProductID, func(p *models.Product) error {
		v := p.Variant(*order.VariantID)
		if v == nil {
			return errVariantMissing
		}
		v.StockQuantity += order.Quantity
		v.ReorderStatus = models.ReorderIdle
		p.RefreshVariantStock(v.ID)
		return nil
	})
}

func (h *ReceiptHandler) receiveProduct(ctx context.Context, order *models.PurchaseOrder) (*models.Product, *models.Product, error) {
	after, err := h.store.IncrementProductStock(ctx, order.ProductID, order.Quantity)
	if err != nil {
		return nil, nil, err
	}

	before := after.Clone()
	before.StockQuantity -= order.Quantity
	if !before.HasVariants {
		before.InStock = before.Available()
	}
	return before, after, nil
}

// announce publishes the product change so the back-in-stock handler sees
// restocks made here. Publish failures are logged; the stock is already applied.
func (h *ReceiptHandler) announce(ctx context.Context, before, after *models.Product) {
	if h.publisher == nil {
		return
	}

	event := &models.ProductUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeProductUpdated,
			Timestamp: time.Now(),
		},
		Before: before,
		After:  after,
	}

	if err := h.publisher.PublishProductUpdated(ctx, event); err != nil {
		h.logger.Error("Failed to publish ProductUpdated event",
			zap.String("product_id", after.ID),
			zap.Error(err))
	}
}
