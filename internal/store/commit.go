package store

import (
	"context"
	"errors"
	"fmt"

	"restock-service/internal/models"
	"restock-service/internal/util"

	"github.com/jmoiron/sqlx"
)

// Commit writes the batch in chunks of at most maxBatchOps ops. Each chunk is
// one transaction and each group runs inside a savepoint, so a failed guard
// rolls back only its own group. Chunks committed before an error stay committed.
func (s *Store) Commit(ctx context.Context, batch *Batch) (CommitResult, error) {
	var result CommitResult

	chunks, err := batch.Chunks(s.maxBatchOps)
	if err != nil {
		return result, err
	}

	for i, chunk := range chunks {
		applied, skipped, err := s.commitChunk(ctx, chunk)
		if err != nil {
			return result, fmt.Errorf("failed to commit chunk %d/%d: %w", i+1, len(chunks), err)
		}
		result.Applied += applied
		result.Skipped += skipped
		result.Chunks++
		util.BatchChunksCommittedTotal.Inc()
	}

	return result, nil
}

func (s *Store) commitChunk(ctx context.Context, groups [][]Op) (int, int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	applied, skipped := 0, 0
	for _, group := range groups {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT batch_group"); err != nil {
			return 0, 0, err
		}

		ok, err := applyGroup(ctx, tx, group)
		if err != nil {
			return 0, 0, err
		}

		if ok {
			_, err = tx.ExecContext(ctx, "RELEASE SAVEPOINT batch_group")
			applied++
		} else {
			_, err = tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT batch_group")
			skipped++
		}
		if err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return applied, skipped, nil
}

func applyGroup(ctx context.Context, tx *sqlx.Tx, group []Op) (bool, error) {
	for _, op := range group {
		ok, err := applyOp(ctx, tx, op)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op.opName(), err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func applyOp(ctx context.Context, tx *sqlx.Tx, op Op) (bool, error) {
	switch o := op.(type) {
	case InsertNotification:
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO notifications (id, user_id, kind, title, message, link, product_id, read, created_at)
			VALUES (:id, :user_id, :kind, :title, :message, :link, :product_id, :read, :created_at)`,
			o.Notification)
		return err == nil, err

	case IncrementUnread:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notification_counters (user_id, unread_count) VALUES ($1, 1)
			ON CONFLICT (user_id) DO UPDATE SET unread_count = notification_counters.unread_count + 1`,
			o.UserID)
		return err == nil, err

	case InsertAlert:
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO low_stock_alerts (id, product_id, variant_id, product_name, current_stock, threshold, status, raised_at)
			VALUES (:id, :product_id, :variant_id, :product_name, :current_stock, :threshold, :status, :raised_at)`,
			o.Alert)
		return err == nil, err

	case InsertPurchaseOrder:
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO purchase_orders (id, product_id, variant_id, quantity, supplier_id, status, auto_generated, created_at)
			VALUES (:id, :product_id, :variant_id, :quantity, :supplier_id, :status, :auto_generated, :created_at)`,
			o.Order)
		return err == nil, err

	case MarkSubscriptionNotified:
		res, err := tx.ExecContext(ctx,
			"UPDATE stock_subscriptions SET status = $1, notified_at = $2 WHERE id = $3 AND status = $4",
			models.SubscriptionNotified, o.At, o.SubscriptionID, models.SubscriptionPending)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n == 1, err

	case DeleteSubscription:
		_, err := tx.ExecContext(ctx, "DELETE FROM stock_subscriptions WHERE id = $1", o.SubscriptionID)
		return err == nil, err

	case MutateProduct:
		product, err := lockProduct(ctx, tx, o.ProductID)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !o.Apply(product) {
			return false, nil
		}
		return true, writeProduct(ctx, tx, product)

	default:
		return false, fmt.Errorf("unsupported op %T", op)
	}
}
