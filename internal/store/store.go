package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"restock-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const productColumns = `id, name, images, track_inventory, stock_quantity, low_stock_threshold,
	has_variants, variants, auto_reorder, reorder_quantity, reorder_status, last_reorder_date,
	last_purchase_order_id, preferred_supplier_id, in_stock, updated_at`

type Store struct {
	db          *sqlx.DB
	maxBatchOps int
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxBatchOps int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if maxBatchOps <= 0 {
		maxBatchOps = DefaultMaxBatchOps
	}

	return &Store{db: db, maxBatchOps: maxBatchOps}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListTrackedProducts retrieves every product with inventory tracking enabled
func (s *Store) ListTrackedProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE track_inventory = TRUE ORDER BY id")
	return products, err
}

// IncrementProductStock adds delta to the main product stock without reading
// it first and clears the reorder flag. The in-stock flag of a product with
// variants is derived from the variants and left untouched. It returns the
// updated product.
func (s *Store) IncrementProductStock(ctx context.Context, id string, delta int) (*models.Product, error) {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $1,
			reorder_status = $2,
			in_stock = CASE WHEN has_variants THEN in_stock
				ELSE (NOT track_inventory OR stock_quantity + $1 > 0) END,
			updated_at = NOW()
		WHERE id = $3
		RETURNING ` + productColumns

	var product models.Product
	err := s.db.GetContext(ctx, &product, query, delta, models.ReorderIdle, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment stock: %w", err)
	}
	return &product, nil
}

// MutateProductNow runs a read-modify-write of a whole product document inside
// one transaction holding the row lock, so concurrent writers to the same
// variants array serialize instead of overwriting each other.
func (s *Store) MutateProductNow(ctx context.Context, id string, fn func(p *models.Product) error) (*models.Product, *models.Product, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	before, err := lockProduct(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}

	after := before.Clone()
	if err := fn(after); err != nil {
		return nil, nil, err
	}

	if err := writeProduct(ctx, tx, after); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit product update: %w", err)
	}
	return before, after, nil
}

func lockProduct(ctx context.Context, tx *sqlx.Tx, id string) (*models.Product, error) {
	var product models.Product
	err := tx.GetContext(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock product: %w", err)
	}
	return &product, nil
}

func writeProduct(ctx context.Context, tx *sqlx.Tx, p *models.Product) error {
	query := `
		UPDATE products SET
			name = :name,
			images = :images,
			track_inventory = :track_inventory,
			stock_quantity = :stock_quantity,
			low_stock_threshold = :low_stock_threshold,
			has_variants = :has_variants,
			variants = :variants,
			auto_reorder = :auto_reorder,
			reorder_quantity = :reorder_quantity,
			reorder_status = :reorder_status,
			last_reorder_date = :last_reorder_date,
			last_purchase_order_id = :last_purchase_order_id,
			preferred_supplier_id = :preferred_supplier_id,
			in_stock = :in_stock,
			updated_at = NOW()
		WHERE id = :id`

	if _, err := tx.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("failed to write product: %w", err)
	}
	return nil
}
