package service

import (
	"context"
	"fmt"
	"time"

	"restock-service/internal/models"
	"restock-service/internal/store"
	"restock-service/internal/util"

	"go.uber.org/zap"
)

// LowStockSweep raises low stock alerts and triggers auto reorders
type LowStockSweep struct {
	store            Store
	notifier         *Notifier
	reorderer        *Reorderer
	defaultThreshold int
	logger           *zap.Logger
}

// NewLowStockSweep creates a new low stock sweep
func NewLowStockSweep(store Store, notifier *Notifier, reorderer *Reorderer, defaultThreshold int) *LowStockSweep {
	return &LowStockSweep{
		store:            store,
		notifier:         notifier,
		reorderer:        reorderer,
		defaultThreshold: defaultThreshold,
		logger:           util.ComponentLogger(SweepLowStock),
	}
}

// Name returns the sweep name
func (s *LowStockSweep) Name() string {
	return SweepLowStock
}

// Run scans every tracked product once. Alerts are written as they are found;
// reorders are collected and committed together at the end of the pass.
func (s *LowStockSweep) Run(ctx context.Context) (SweepResult, error) {
	ctx, span := util.StartSpan(ctx, "LowStockSweep.Run")
	defer span.End()

	result := SweepResult{Sweep: SweepLowStock, StartedAt: time.Now()}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
		util.SweepDuration.WithLabelValues(SweepLowStock).Observe(result.Duration.Seconds())
	}()

	products, err := s.store.ListTrackedProducts(ctx)
	if err != nil {
		s.logger.Error("Failed to list tracked products", zap.Error(err))
		return result, fmt.Errorf("failed to list tracked products: %w", err)
	}
	result.Scanned = len(products)

	batch := store.NewBatch()
	planned := 0

	for i := range products {
		planned += s.evaluate(ctx, &products[i], batch, &result)
	}

	if !batch.Empty() {
		res, err := s.store.Commit(ctx, batch)
		if err != nil {
			s.logger.Error("Failed to commit reorder batch", zap.Int("planned", planned), zap.Error(err))
			return result, fmt.Errorf("failed to commit reorder batch: %w", err)
		}
		result.Reorders = planned - res.Skipped
		result.Skipped = res.Skipped
		recordSkipped(SweepLowStock, res.Skipped)
		util.PurchaseOrdersCreatedTotal.Add(float64(result.Reorders))
	}

	s.logger.Info("Low stock sweep completed",
		zap.Int("products", result.Scanned),
		zap.Int("alerts", result.Alerts),
		zap.Int("reorders", result.Reorders),
		zap.Int("skipped", result.Skipped),
		zap.Int("failures", result.Failures))

	return result, nil
}

// evaluate checks one product and returns how many reorders it planned
func (s *LowStockSweep) evaluate(ctx context.Context, product *models.Product, batch *store.Batch, result *SweepResult) int {
	productThreshold := s.threshold(product.LowStockThreshold)

	if !product.HasVariants {
		if product.StockQuantity > productThreshold {
			return 0
		}
		s.alert(ctx, product, nil, product.StockQuantity, productThreshold, result)
		if product.AutoReorder && !product.ReorderStatus.InProgress() {
			s.reorderer.Plan(ctx, product, nil, batch)
			return 1
		}
		return 0
	}

	planned := 0
	for i := range product.Variants {
		v := &product.Variants[i]
		if !v.TrackInventory {
			continue
		}

		threshold := productThreshold
		if v.LowStockThreshold != nil {
			threshold = *v.LowStockThreshold
		}
		if v.StockQuantity > threshold {
			continue
		}

		s.alert(ctx, product, v, v.StockQuantity, threshold, result)
		if v.AutoReorder && !v.ReorderStatus.InProgress() {
			s.reorderer.Plan(ctx, product, v, batch)
			planned++
		}
	}
	return planned
}

func (s *LowStockSweep) alert(ctx context.Context, product *models.Product, variant *models.Variant, stock, threshold int, result *SweepResult) {
	alert := &models.LowStockAlert{
		ProductID:    product.ID,
		ProductName:  product.Name,
		CurrentStock: stock,
		Threshold:    threshold,
	}
	if variant != nil {
		variantID := variant.ID
		alert.VariantID = &variantID
	}

	if _, err := s.notifier.AlertAdmins(ctx, alert); err != nil {
		s.logger.Error("Failed to raise low stock alert",
			zap.String("product_id", product.ID),
			zap.Stringp("variant_id", alert.VariantID),
			zap.Error(err))
		result.Failures++
		util.SweepRecordFailuresTotal.WithLabelValues(SweepLowStock).Inc()
		return
	}
	result.Alerts++
}

func (s *LowStockSweep) threshold(value *int) int {
	if value != nil {
		return *value
	}
	return s.defaultThreshold
}
