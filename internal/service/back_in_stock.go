package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"restock-service/internal/models"
	"restock-service/internal/store"
	"restock-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SubscriberFanout delivers a back-in-stock notification to every pending
// subscriber of one product or variant
type SubscriberFanout struct {
	store    Store
	notifier *Notifier
	logger   *zap.Logger
}

// NewSubscriberFanout creates a new subscriber fan-out
func NewSubscriberFanout(store Store, notifier *Notifier) *SubscriberFanout {
	return &SubscriberFanout{
		store:    store,
		notifier: notifier,
		logger:   util.ComponentLogger("fanout"),
	}
}

// Notify notifies pending subscribers of product, restricted to variantID
// (nil means the main product). Each delivery commits the inbox entry, the
// counter increment and the notified flag as one group. It returns the
// number of subscribers notified.
func (f *SubscriberFanout) Notify(ctx context.Context, product *models.Product, variantID *string) (int, error) {
	ctx, span := util.StartSpan(ctx, "SubscriberFanout.Notify",
		attribute.String("product.id", product.ID))
	defer span.End()

	subs, err := f.store.FindPendingSubscriptions(ctx, product.ID, variantID)
	if err != nil {
		return 0, fmt.Errorf("failed to find subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	now := time.Now()
	batch := store.NewBatch()
	for _, sub := range subs {
		ops := []store.Op{store.MarkSubscriptionNotified{SubscriptionID: sub.ID, At: now}}
		ops = append(ops, f.notifier.Ops(backInStockMessage(sub.UserID, product, variantID))...)
		batch.Add(ops...)
	}

	res, err := f.store.Commit(ctx, batch)
	if err != nil {
		return res.Applied, fmt.Errorf("failed to commit subscriber notifications: %w", err)
	}

	recordSkipped("fanout", res.Skipped)
	util.NotificationsSentTotal.WithLabelValues(string(models.NotificationBackInStock)).Add(float64(res.Applied))

	f.logger.Info("Notified back-in-stock subscribers",
		zap.String("product_id", product.ID),
		zap.Stringp("variant_id", variantID),
		zap.Int("notified", res.Applied),
		zap.Int("skipped", res.Skipped))

	return res.Applied, nil
}

// BackInStockHandler reacts to product writes that bring an item back in stock
type BackInStockHandler struct {
	fanout *SubscriberFanout
	guard  eventGuard
	logger *zap.Logger
}

// NewBackInStockHandler creates a new back-in-stock handler
func NewBackInStockHandler(fanout *SubscriberFanout, deduper EventDeduper) *BackInStockHandler {
	logger := util.ComponentLogger("back-in-stock")
	return &BackInStockHandler{
		fanout: fanout,
		guard:  eventGuard{deduper: deduper, logger: logger},
		logger: logger,
	}
}

// HandleProductUpdated fires only on an out-of-stock to in-stock transition
// of the product. For products with variants every variant that newly came
// back is fanned out concurrently; the call returns once all are done.
func (h *BackInStockHandler) HandleProductUpdated(ctx context.Context, event *models.ProductUpdatedEvent) (err error) {
	ctx, span := util.StartSpan(ctx, "BackInStockHandler.HandleProductUpdated",
		attribute.String("event.id", event.EventID))
	defer func() { util.EndSpan(span, err) }()

	if event.Before == nil || event.After == nil {
		return nil
	}
	if h.guard.seen(ctx, event.EventID) {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	before, after := event.Before, event.After
	transition := models.DetectTransition(before.InStock, after.InStock)
	if transition != models.StockRestocked {
		h.logger.Debug("No back-in-stock transition",
			zap.String("product_id", after.ID),
			zap.Stringer("transition", transition))
		return nil
	}

	if !after.HasVariants {
		if _, err := h.fanout.Notify(ctx, after, nil); err != nil {
			return err
		}
		h.guard.mark(ctx, event.EventID)
		return nil
	}

	restocked := restockedVariants(before, after)
	errs := make([]error, len(restocked))

	var wg sync.WaitGroup
	for i, variantID := range restocked {
		wg.Add(1)
		go func(i int, variantID string) {
			defer wg.Done()
			if _, err := h.fanout.Notify(ctx, after, &variantID); err != nil {
				h.logger.Error("Failed to notify variant subscribers",
					zap.String("product_id", after.ID),
					zap.String("variant_id", variantID),
					zap.Error(err))
				errs[i] = err
			}
		}(i, variantID)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	h.guard.mark(ctx, event.EventID)
	return nil
}

// restockedVariants lists variants whose cached flag went from absent or
// false to true between the two snapshots
func restockedVariants(before, after *models.Product) []string {
	was := make(map[string]bool, len(before.Variants))
	for i := range before.Variants {
		was[before.Variants[i].ID] = before.Variants[i].IsInStock()
	}

	var ids []string
	for i := range after.Variants {
		v := &after.Variants[i]
		if v.IsInStock() && !was[v.ID] {
			ids = append(ids, v.ID)
		}
	}
	return ids
}
