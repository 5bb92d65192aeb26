package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"restock-service/internal/models"
)

// GetPurchaseOrder retrieves a purchase order by ID
func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM purchase_orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetSupplier retrieves a supplier by ID
func (s *Store) GetSupplier(ctx context.Context, id string) (*models.Supplier, error) {
	var supplier models.Supplier
	err := s.db.GetContext(ctx, &supplier, "SELECT id, name, user_id FROM suppliers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("supplier %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

// ListUsersByRole retrieves users carrying the given role tag
func (s *Store) ListUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	var users []models.User
	err := s.db.SelectContext(ctx, &users,
		"SELECT id, email, role FROM users WHERE role = $1 ORDER BY id", role)
	return users, err
}

// ListPendingSubscriptions retrieves every subscription not yet notified
func (s *Store) ListPendingSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.SelectContext(ctx, &subs,
		"SELECT * FROM stock_subscriptions WHERE status = $1 ORDER BY created_at, id",
		models.SubscriptionPending)
	return subs, err
}

// FindPendingSubscriptions retrieves pending subscriptions for one product.
// A nil variantID matches only main product subscriptions.
func (s *Store) FindPendingSubscriptions(ctx context.Context, productID string, variantID *string) ([]models.Subscription, error) {
	var subs []models.Subscription
	var err error

	if variantID == nil {
		err = s.db.SelectContext(ctx, &subs,
			`SELECT * FROM stock_subscriptions
			 WHERE product_id = $1 AND status = $2 AND variant_id IS NULL
			 ORDER BY created_at, id`,
			productID, models.SubscriptionPending)
	} else {
		err = s.db.SelectContext(ctx, &subs,
			`SELECT * FROM stock_subscriptions
			 WHERE product_id = $1 AND status = $2 AND variant_id = $3
			 ORDER BY created_at, id`,
			productID, models.SubscriptionPending, *variantID)
	}
	return subs, err
}
