package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restock-service/internal/models"
	"restock-service/internal/store"
	"restock-service/internal/util"

	"go.uber.org/zap"
)

// StockRecoverySweep re-checks stock for every pending subscription and
// notifies subscribers whose item is available again
type StockRecoverySweep struct {
	store    Store
	notifier *Notifier
	logger   *zap.Logger
}

// NewStockRecoverySweep creates a new stock recovery sweep
func NewStockRecoverySweep(store Store, notifier *Notifier) *StockRecoverySweep {
	return &StockRecoverySweep{
		store:    store,
		notifier: notifier,
		logger:   util.ComponentLogger(SweepStockRecovery),
	}
}

// Name returns the sweep name
func (s *StockRecoverySweep) Name() string {
	return SweepStockRecovery
}

// Run performs one pass. Every delivery is a batch group that marks the
// subscription notified together with the inbox write, so anything not
// committed stays pending for the next run.
func (s *StockRecoverySweep) Run(ctx context.Context) (SweepResult, error) {
	ctx, span := util.StartSpan(ctx, "StockRecoverySweep.Run")
	defer span.End()

	result := SweepResult{Sweep: SweepStockRecovery, StartedAt: time.Now()}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
		util.SweepDuration.WithLabelValues(SweepStockRecovery).Observe(result.Duration.Seconds())
	}()

	subs, err := s.store.ListPendingSubscriptions(ctx)
	if err != nil {
		s.logger.Error("Failed to list pending subscriptions", zap.Error(err))
		return result, fmt.Errorf("failed to list pending subscriptions: %w", err)
	}
	result.Scanned = len(subs)

	products := make(map[string]*models.Product)
	missing := make(map[string]bool)
	batch := store.NewBatch()
	deliveries := 0
	now := time.Now()

	for _, sub := range subs {
		if missing[sub.ProductID] {
			batch.Add(store.DeleteSubscription{SubscriptionID: sub.ID})
			result.Cleaned++
			continue
		}

		product, ok := products[sub.ProductID]
		if !ok {
			product, err = s.store.GetProduct(ctx, sub.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				missing[sub.ProductID] = true
				batch.Add(store.DeleteSubscription{SubscriptionID: sub.ID})
				result.Cleaned++
				continue
			}
			if err != nil {
				s.logger.Error("Failed to load product for subscription",
					zap.String("subscription_id", sub.ID),
					zap.String("product_id", sub.ProductID),
					zap.Error(err))
				result.Failures++
				util.SweepRecordFailuresTotal.WithLabelValues(SweepStockRecovery).Inc()
				continue
			}
			products[sub.ProductID] = product
		}

		if !subscriptionInStock(product, sub) {
			continue
		}

		ops := []store.Op{store.MarkSubscriptionNotified{SubscriptionID: sub.ID, At: now}}
		ops = append(ops, s.notifier.Ops(backInStockMessage(sub.UserID, product, sub.VariantID))...)
		batch.Add(ops...)
		deliveries++
	}

	if batch.Empty() {
		s.logger.Info("Stock recovery sweep found nothing to do", zap.Int("pending", result.Scanned))
		return result, nil
	}

	res, err := s.store.Commit(ctx, batch)
	if err != nil {
		s.logger.Error("Failed to commit stock recovery batch",
			zap.Int("groups_committed", res.Applied+res.Skipped),
			zap.Error(err))
		return result, fmt.Errorf("failed to commit stock recovery batch: %w", err)
	}

	// deletes never skip, so every skipped group is a delivery someone else made first
	result.Notified = deliveries - res.Skipped
	result.Skipped = res.Skipped
	recordSkipped(SweepStockRecovery, res.Skipped)
	util.NotificationsSentTotal.WithLabelValues(string(models.NotificationBackInStock)).Add(float64(result.Notified))
	util.SubscriptionsCleanedTotal.Add(float64(result.Cleaned))

	s.logger.Info("Stock recovery sweep completed",
		zap.Int("pending", result.Scanned),
		zap.Int("notified", result.Notified),
		zap.Int("cleaned", result.Cleaned),
		zap.Int("skipped", result.Skipped),
		zap.Int("failures", result.Failures))

	return result, nil
}

// subscriptionInStock decides availability for the item a subscription targets
func subscriptionInStock(product *models.Product, sub models.Subscription) bool {
	if sub.VariantID != nil {
		v := product.Variant(*sub.VariantID)
		return v != nil && v.Available()
	}
	return product.Available()
}
