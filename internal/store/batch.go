package store

import (
	"errors"
	"fmt"
	"time"

	"restock-service/internal/models"
)

// DefaultMaxBatchOps is the per-transaction operation cap
const DefaultMaxBatchOps = 500

var (
	// ErrNotFound is returned when a referenced document does not exist
	ErrNotFound = errors.New("not found")
	// ErrGroupTooLarge is returned when a single group exceeds the batch cap
	ErrGroupTooLarge = errors.New("batch group exceeds operation limit")
)

// Op is a single write inside a batch
type Op interface {
	opName() string
}

// InsertNotification appends an inbox entry
type InsertNotification struct {
	Notification *models.Notification
}

// IncrementUnread atomically adds one to a user's unread counter
type IncrementUnread struct {
	UserID string
}

// InsertAlert appends a low stock alert
type InsertAlert struct {
	Alert *models.LowStockAlert
}

// InsertPurchaseOrder creates a purchase order
type InsertPurchaseOrder struct {
	Order *models.PurchaseOrder
}

// MarkSubscriptionNotified moves a pending subscription to notified.
// It is a guard: if the subscription is gone or already notified the rest
// of its group is skipped.
type MarkSubscriptionNotified struct {
	SubscriptionID string
	At             time.Time
}

// DeleteSubscription removes a subscription; missing ones are ignored
type DeleteSubscription struct {
	SubscriptionID string
}

// MutateProduct applies Apply to the current product under a row lock and
// writes the whole document back. It is a guard: when the product is missing
// or Apply returns false nothing is written and the rest of the group is skipped.
type MutateProduct struct {
	ProductID string
	Apply     func(p *models.Product) bool
}

func (InsertNotification) opName() string       { return "insert_notification" }
func (IncrementUnread) opName() string          { return "increment_unread" }
func (InsertAlert) opName() string              { return "insert_alert" }
func (InsertPurchaseOrder) opName() string      { return "insert_purchase_order" }
func (MarkSubscriptionNotified) opName() string { return "mark_subscription_notified" }
func (DeleteSubscription) opName() string       { return "delete_subscription" }
func (MutateProduct) opName() string            { return "mutate_product" }

// Batch is an ordered list of groups. A group is all-or-nothing: either every
// op in it lands or, when one of its guards fails, none does.
type Batch struct {
	groups [][]Op
	ops    int
}

// NewBatch creates an empty batch
func NewBatch() *Batch {
	return &Batch{}
}

// Add appends ops as one group
func (b *Batch) Add(ops ...Op) {
	if len(ops) == 0 {
		return
	}
	group := make([]Op, len(ops))
	copy(group, ops)
	b.groups = append(b.groups, group)
	b.ops += len(ops)
}

// Len returns the total number of ops
func (b *Batch) Len() int {
	return b.ops
}

// Groups returns the number of groups
func (b *Batch) Groups() int {
	return len(b.groups)
}

// Empty reports whether nothing was added
func (b *Batch) Empty() bool {
	return len(b.groups) == 0
}

// Chunks packs groups, in order, into chunks of at most limit ops.
// A group never straddles two chunks.
func (b *Batch) Chunks(limit int) ([][][]Op, error) {
	if limit <= 0 {
		limit = DefaultMaxBatchOps
	}

	var chunks [][][]Op
	var current [][]Op
	size := 0

	for _, group := range b.groups {
		if len(group) > limit {
			return nil, fmt.Errorf("%w: %d > %d", ErrGroupTooLarge, len(group), limit)
		}
		if size+len(group) > limit {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}
		current = append(current, group)
		size += len(group)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}

// CommitResult summarizes a batch commit
type CommitResult struct {
	Applied int
	Skipped int
	Chunks  int
}
