package service

import (
	"context"
	"time"

	"restock-service/internal/models"
	"restock-service/internal/store"
	"restock-service/internal/util"

	"go.uber.org/zap"
)

// Store is the persistence contract the pipeline consumes. Both store.Store
// and store.MemoryStore satisfy it.
type Store interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListTrackedProducts(ctx context.Context) ([]models.Product, error)
	ListPendingSubscriptions(ctx context.Context) ([]models.Subscription, error)
	FindPendingSubscriptions(ctx context.Context, productID string, variantID *string) ([]models.Subscription, error)
	ListUsersByRole(ctx context.Context, role string) ([]models.User, error)
	GetSupplier(ctx context.Context, id string) (*models.Supplier, error)
	GetPurchaseOrder(ctx context.Context, id string) (*models.PurchaseOrder, error)
	IncrementProductStock(ctx context.Context, id string, delta int) (*models.Product, error)
	MutateProductNow(ctx context.Context, id string, fn func(p *models.Product) error) (*models.Product, *models.Product, error)
	Commit(ctx context.Context, batch *store.Batch) (store.CommitResult, error)
}

// ProductEventPublisher emits product change events produced by this service
type ProductEventPublisher interface {
	PublishProductUpdated(ctx context.Context, event *models.ProductUpdatedEvent) error
}

// EventDeduper remembers processed event ids
type EventDeduper interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// processedEventTTL bounds how long a handled event id is remembered
const processedEventTTL = 24 * time.Hour

// SweepResult summarizes one sweep run
type SweepResult struct {
	Sweep     string        `json:"sweep"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	Notified  int           `json:"notified"`
	Cleaned   int           `json:"cleaned"`
	Alerts    int           `json:"alerts"`
	Reorders  int           `json:"reorders"`
	Skipped   int           `json:"skipped"`
	Failures  int           `json:"failures"`
}

// Sweep names
const (
	SweepStockRecovery = "stock-recovery"
	SweepLowStock      = "low-stock"
)

// eventGuard drops change events that were already handled. A nil deduper
// disables the guard; lookup errors are logged and treated as unseen.
type eventGuard struct {
	deduper EventDeduper
	logger  *zap.Logger
}

func (g eventGuard) seen(ctx context.Context, eventID string) bool {
	if g.deduper == nil || eventID == "" {
		return false
	}
	seen, err := g.deduper.CheckIdempotencyKey(ctx, "event:"+eventID)
	if err != nil {
		g.logger.Warn("Failed to check processed event", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return seen
}

func (g eventGuard) mark(ctx context.Context, eventID string) {
	if g.deduper == nil || eventID == "" {
		return
	}
	if err := g.deduper.SetIdempotencyKey(ctx, "event:"+eventID, time.Now().Unix(), processedEventTTL); err != nil {
		g.logger.Warn("Failed to mark event processed", zap.String("event_id", eventID), zap.Error(err))
	}
}

func recordSkipped(source string, n int) {
	if n > 0 {
		util.BatchGroupsSkippedTotal.WithLabelValues(source).Add(float64(n))
	}
}
