package service

import (
	"context"
	"errors"
	"time"

	"restock-service/internal/models"
	"restock-service/internal/store"
	"restock-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reorderer plans automated replenishment orders
type Reorderer struct {
	store           Store
	notifier        *Notifier
	defaultQuantity int
	logger          *zap.Logger
}

// NewReorderer creates a new reorderer
func NewReorderer(store Store, notifier *Notifier, defaultQuantity int) *Reorderer {
	return &Reorderer{
		store:           store,
		notifier:        notifier,
		defaultQuantity: defaultQuantity,
		logger:          util.ComponentLogger("reorder"),
	}
}

// Plan adds one reorder group to batch for the product, or for one of its
// variants when variant is non-nil. The group leads with a guard that flips
// the reorder status to in progress on the current document, so a reorder
// already outstanding when the batch commits drops the whole group.
func (r *Reorderer) Plan(ctx context.Context, product *models.Product, variant *models.Variant, batch *store.Batch) *models.PurchaseOrder {
	now := time.Now()
	order := &models.PurchaseOrder{
		ID:            uuid.New().String(),
		ProductID:     product.ID,
		Quantity:      r.quantity(product, variant),
		SupplierID:    supplierFor(product, variant),
		Status:        models.PurchaseOrderPending,
		AutoGenerated: true,
		CreatedAt:     now,
	}
	if variant != nil {
		variantID := variant.ID
		order.VariantID = &variantID
	}

	ops := []store.Op{
		store.MutateProduct{ProductID: product.ID, Apply: markReorder(order, now)},
		store.InsertPurchaseOrder{Order: order},
	}
	if userID := r.supplierUser(ctx, order.SupplierID); userID != "" {
		ops = append(ops, r.notifier.Ops(purchaseOrderMessage(userID, product, order))...)
	}
	batch.Add(ops...)

	r.logger.Info("Planned auto reorder",
		zap.String("product_id", product.ID),
		zap.Stringp("variant_id", order.VariantID),
		zap.String("purchase_order_id", order.ID),
		zap.Int("quantity", order.Quantity),
		zap.Stringp("supplier_id", order.SupplierID))

	return order
}

func (r *Reorderer) quantity(product *models.Product, variant *models.Variant) int {
	if variant != nil && variant.ReorderQuantity != nil && *variant.ReorderQuantity > 0 {
		return *variant.ReorderQuantity
	}
	if product.ReorderQuantity != nil && *product.ReorderQuantity > 0 {
		return *product.ReorderQuantity
	}
	return r.defaultQuantity
}

func supplierFor(product *models.Product, variant *models.Variant) *string {
	if variant != nil && variant.PreferredSupplierID != nil && *variant.PreferredSupplierID != "" {
		id := *variant.PreferredSupplierID
		return &id
	}
	if product.PreferredSupplierID != nil && *product.PreferredSupplierID != "" {
		id := *product.PreferredSupplierID
		return &id
	}
	return nil
}

// supplierUser resolves the user account linked to a supplier. Lookup
// failures never block the reorder; the order just goes out without a
// notification.
func (r *Reorderer) supplierUser(ctx context.Context, supplierID *string) string {
	if supplierID == nil {
		return ""
	}
	supplier, err := r.store.GetSupplier(ctx, *supplierID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("Failed to load supplier", zap.String("supplier_id", *supplierID), zap.Error(err))
		}
		return ""
	}
	if supplier.UserID == nil {
		return ""
	}
	return *supplier.UserID
}

func markReorder(order *models.PurchaseOrder, now time.Time) func(p *models.Product) bool {
	return func(p *models.Product) bool {
		orderID := order.ID
		at := now

		if order.VariantID == nil {
			if p.ReorderStatus.InProgress() {
				return false
			}
			p.ReorderStatus = models.ReorderInProgress
			p.LastReorderDate = &at
			p.LastPurchaseOrderID = &orderID
			return true
		}

		v := p.Variant(*order.VariantID)
		if v == nil || v.ReorderStatus.InProgress() {
			return false
		}
		v.ReorderStatus = models.ReorderInProgress
		v.LastReorderDate = &at
		v.LastPurchaseOrderID = &orderID
		p.LastReorderDate = &at
		p.LastPurchaseOrderID = &orderID
		return true
	}
}
