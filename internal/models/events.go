package models

import "time"

// Event types
const (
	EventTypeProductUpdated       = "PRODUCT_UPDATED"
	EventTypePurchaseOrderUpdated = "PURCHASE_ORDER_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ProductUpdatedEvent carries the document snapshots around a product write
type ProductUpdatedEvent struct {
	BaseEvent
	Before *Product `json:"before"`
	After  *Product `json:"after"`
}

// PurchaseOrderUpdatedEvent carries the document snapshots around a purchase order write
type PurchaseOrderUpdatedEvent struct {
	BaseEvent
	Before *PurchaseOrder `json:"before"`
	After  *PurchaseOrder `json:"after"`
}
