package models

// SubscriptionStatus is the lifecycle of a stock notification subscription.
// pending -> notified is the only transition; notified is terminal.
type SubscriptionStatus string

const (
	SubscriptionPending  SubscriptionStatus = "PENDING"
	SubscriptionNotified SubscriptionStatus = "NOTIFIED"
)

// ReorderStatus tracks whether a replenishment order is outstanding.
// The zero value counts as idle. idle -> in_progress is set by the low stock
// sweep, in_progress -> idle only by a purchase order receipt.
type ReorderStatus string

const (
	ReorderIdle       ReorderStatus = "IDLE"
	ReorderInProgress ReorderStatus = "IN_PROGRESS"
)

// InProgress reports whether a reorder is outstanding
func (s ReorderStatus) InProgress() bool {
	return s == ReorderInProgress
}

// PurchaseOrderStatus values this service knows about. Other states may be
// set by external flows and are carried through untouched.
type PurchaseOrderStatus string

const (
	PurchaseOrderPending  PurchaseOrderStatus = "PENDING"
	PurchaseOrderReceived PurchaseOrderStatus = "RECEIVED"
)

// NotificationKind classifies inbox entries
type NotificationKind string

const (
	NotificationBackInStock   NotificationKind = "BACK_IN_STOCK"
	NotificationLowStock      NotificationKind = "LOW_STOCK"
	NotificationPurchaseOrder NotificationKind = "PURCHASE_ORDER"
)

// StockTransition is the change of a cached in-stock flag between two snapshots
type StockTransition int

const (
	StockUnchanged StockTransition = iota
	StockRestocked
	StockDepleted
)

// DetectTransition classifies a before/after pair of in-stock flags
func DetectTransition(before, after bool) StockTransition {
	switch {
	case !before && after:
		return StockRestocked
	case before && !after:
		return StockDepleted
	default:
		return StockUnchanged
	}
}

func (t StockTransition) String() string {
	switch t {
	case StockRestocked:
		return "restocked"
	case StockDepleted:
		return "depleted"
	default:
		return "unchanged"
	}
}
