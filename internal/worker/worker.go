package worker

import (
	"context"

	"restock-service/internal/broker"
	"restock-service/internal/service"
	"restock-service/internal/util"

	"go.uber.org/zap"
)

// ProductWorker consumes product change events and runs the back-in-stock handler
type ProductWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewProductWorker creates a new product worker
func NewProductWorker(consumer *broker.Consumer, backInStock *service.BackInStockHandler) *ProductWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnProductUpdated(backInStock.HandleProductUpdated)

	return &ProductWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.ComponentLogger("product-worker"),
	}
}

// Start starts the worker
func (w *ProductWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting product worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ProductWorker) Stop() error {
	w.logger.Info("Stopping product worker")
	return w.consumer.Close()
}

// PurchaseOrderWorker consumes purchase order change events and applies receipts
type PurchaseOrderWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewPurchaseOrderWorker creates a new purchase order worker
func NewPurchaseOrderWorker(consumer *broker.Consumer, receipts *service.ReceiptHandler) *PurchaseOrderWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPurchaseOrderUpdated(receipts.HandlePurchaseOrderUpdated)

	return &PurchaseOrderWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.ComponentLogger("purchase-order-worker"),
	}
}

// Start starts the worker
func (w *PurchaseOrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting purchase order worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *PurchaseOrderWorker) Stop() error {
	w.logger.Info("Stopping purchase order worker")
	return w.consumer.Close()
}
