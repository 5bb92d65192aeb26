package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Product represents a catalog product with optional embedded variants
type Product struct {
	ID                  string         `db:"id" json:"id"`
	Name                string         `db:"name" json:"name"`
	Images              pq.StringArray `db:"images" json:"images"`
	TrackInventory      bool           `db:"track_inventory" json:"track_inventory"`
	StockQuantity       int            `db:"stock_quantity" json:"stock_quantity"`
	LowStockThreshold   *int           `db:"low_stock_threshold" json:"low_stock_threshold,omitempty"`
	HasVariants         bool           `db:"has_variants" json:"has_variants"`
	Variants            Variants       `db:"variants" json:"variants"`
	AutoReorder         bool           `db:"auto_reorder" json:"auto_reorder"`
	ReorderQuantity     *int           `db:"reorder_quantity" json:"reorder_quantity,omitempty"`
	ReorderStatus       ReorderStatus  `db:"reorder_status" json:"reorder_status"`
	LastReorderDate     *time.Time     `db:"last_reorder_date" json:"last_reorder_date,omitempty"`
	LastPurchaseOrderID *string        `db:"last_purchase_order_id" json:"last_purchase_order_id,omitempty"`
	PreferredSupplierID *string        `db:"preferred_supplier_id" json:"preferred_supplier_id,omitempty"`
	InStock             bool           `db:"in_stock" json:"in_stock"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// Variant is a product variant embedded in Product.Variants and keyed by ID
type Variant struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name,omitempty"`
	TrackInventory      bool          `json:"track_inventory"`
	StockQuantity       int           `json:"stock_quantity"`
	LowStockThreshold   *int          `json:"low_stock_threshold,omitempty"`
	AutoReorder         bool          `json:"auto_reorder"`
	ReorderStatus       ReorderStatus `json:"reorder_status,omitempty"`
	ReorderQuantity     *int          `json:"reorder_quantity,omitempty"`
	LastReorderDate     *time.Time    `json:"last_reorder_date,omitempty"`
	LastPurchaseOrderID *string       `json:"last_purchase_order_id,omitempty"`
	PreferredSupplierID *string       `json:"preferred_supplier_id,omitempty"`
	InStock             *bool         `json:"in_stock,omitempty"`
}

// Variants is the embedded variant list, stored as a JSONB column
type Variants []Variant

// Value implements driver.Valuer
func (v Variants) Value() (driver.Value, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner
func (v *Variants) Scan(src interface{}) error {
	switch data := src.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return fmt.Errorf("unsupported variants column type %T", src)
	}
}

// Variant returns the variant with the given id, or nil
func (p *Product) Variant(id string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without touching the original
func (p *Product) Clone() *Product {
	c := *p
	if p.Images != nil {
		c.Images = append(pq.StringArray(nil), p.Images...)
	}
	if p.Variants != nil {
		c.Variants = make(Variants, len(p.Variants))
		copy(c.Variants, p.Variants)
	}
	return &c
}

// Available reports whether the variant counts as in stock
func (v *Variant) Available() bool {
	return v.StockQuantity > 0
}

// IsInStock reports the cached stock flag; absent counts as out of stock
func (v *Variant) IsInStock() bool {
	return v.InStock != nil && *v.InStock
}

// Available reports whether the main product counts as in stock.
// Untracked products are always available.
func (p *Product) Available() bool {
	if !p.TrackInventory {
		return true
	}
	return p.StockQuantity > 0
}

// RefreshVariantStock recomputes the cached flag of one variant from its
// quantity and derives the product flag from the cached variant flags.
// Sibling variants are left as they are.
func (p *Product) RefreshVariantStock(id string) {
	v := p.Variant(id)
	if v == nil {
		return
	}
	inStock := v.Available()
	v.InStock = &inStock

	p.InStock = false
	for i := range p.Variants {
		if p.Variants[i].IsInStock() {
			p.InStock = true
			return
		}
	}
}

// Subscription is a customer's request to be told when an item returns to stock
type Subscription struct {
	ID         string             `db:"id" json:"id"`
	UserID     string             `db:"user_id" json:"user_id"`
	ProductID  string             `db:"product_id" json:"product_id"`
	VariantID  *string            `db:"variant_id" json:"variant_id,omitempty"`
	Status     SubscriptionStatus `db:"status" json:"status"`
	NotifiedAt *time.Time         `db:"notified_at" json:"notified_at,omitempty"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
}

// ErrAlreadyNotified is returned when delivering to a subscription twice
var ErrAlreadyNotified = errors.New("subscription already notified")

// Pending reports whether the subscription still awaits delivery
func (s *Subscription) Pending() bool {
	return s.Status == SubscriptionPending
}

// MarkNotified moves the subscription to its terminal state
func (s *Subscription) MarkNotified(at time.Time) error {
	if !s.Pending() {
		return ErrAlreadyNotified
	}
	s.Status = SubscriptionNotified
	s.NotifiedAt = &at
	return nil
}

// PurchaseOrder is a replenishment order placed with a supplier
type PurchaseOrder struct {
	ID            string              `db:"id" json:"id"`
	ProductID     string              `db:"product_id" json:"product_id"`
	VariantID     *string             `db:"variant_id" json:"variant_id,omitempty"`
	Quantity      int                 `db:"quantity" json:"quantity"`
	SupplierID    *string             `db:"supplier_id" json:"supplier_id,omitempty"`
	Status        PurchaseOrderStatus `db:"status" json:"status"`
	AutoGenerated bool                `db:"auto_generated" json:"auto_generated"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
}

// LowStockAlert is an append-only record of a low stock observation
type LowStockAlert struct {
	ID           string    `db:"id" json:"id"`
	ProductID    string    `db:"product_id" json:"product_id"`
	VariantID    *string   `db:"variant_id" json:"variant_id,omitempty"`
	ProductName  string    `db:"product_name" json:"product_name"`
	CurrentStock int       `db:"current_stock" json:"current_stock"`
	Threshold    int       `db:"threshold" json:"threshold"`
	Status       string    `db:"status" json:"status"`
	Timestamp    time.Time `db:"raised_at" json:"timestamp"`
}

// Notification is a per-user inbox entry
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Link      string           `db:"link" json:"link,omitempty"`
	ProductID *string          `db:"product_id" json:"product_id,omitempty"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// User is the subset of account data this service needs
type User struct {
	ID    string `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	Role  string `db:"role" json:"role"`
}

// Supplier may be linked to a user account that receives order notifications
type Supplier struct {
	ID     string  `db:"id" json:"id"`
	Name   string  `db:"name" json:"name"`
	UserID *string `db:"user_id" json:"user_id,omitempty"`
}

// Alert statuses
const (
	AlertStatusActive = "ACTIVE"
)
