package service

import (
	"context"
	"sync"
	"testing"

	"restock-service/internal/models"
	"restock-service/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receivedEvent stores the received order in m and returns its change event
func receivedEvent(m *store.MemoryStore, order models.PurchaseOrder, beforeStatus models.PurchaseOrderStatus) *models.PurchaseOrderUpdatedEvent {
	before := order
	before.Status = beforeStatus
	after := order
	after.Status = models.PurchaseOrderReceived
	m.PutPurchaseOrder(after)
	return &models.PurchaseOrderUpdatedEvent{
		BaseEvent: models.BaseEvent{EventID: uuid.New().String(), EventType: models.EventTypePurchaseOrderUpdated},
		Before:    &before,
		After:     &after,
	}
}

func TestReceiptIncrementsProductStock(t *testing.T) {
	m := store.NewMemoryStore(0)
	publisher := &fakePublisher{}
	handler := NewReceiptHandler(m, publisher, nil)

	m.PutProduct(&models.Product{ID: "p1", Name: "Mug", TrackInventory: true, StockQuantity: 3,
		ReorderStatus: models.ReorderInProgress, InStock: true})

	order := models.PurchaseOrder{ID: "po-1", ProductID: "p1", Quantity: 50}
	err := handler.HandlePurchaseOrderUpdated(context.Background(), receivedEvent(m, order, models.PurchaseOrderPending))
	require.NoError(t, err)

	product, err := m.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 53, product.StockQuantity)
	assert.Equal(t, models.ReorderIdle, product.ReorderStatus)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeProductUpdated, events[0].EventType)
	assert.Equal(t, 3, events[0].Before.StockQuantity)
	assert.Equal(t, 53, events[0].After.StockQuantity)
}

func TestReceiptAppliesVariantStock(t *testing.T) {
	m := store.NewMemoryStore(0)
	handler := NewReceiptHandler(m, nil, nil)

	m.PutProduct(&models.Product{ID: "p1", Name: "Shirt", TrackInventory: true, HasVariants: true,
		Variants: models.Variants{
			{ID: "v1", TrackInventory: true, StockQuantity: 0, ReorderStatus: models.ReorderInProgress, InStock: boolPtr(false)},
			{ID: "v2", TrackInventory: true, StockQuantity: 4, InStock: boolPtr(true)},
		}})

	order := models.PurchaseOrder{ID: "po-1", ProductID: "p1", VariantID: strPtr("v1"), Quantity: 10}
	err := handler.HandlePurchaseOrderUpdated(context.Background(), receivedEvent(m, order, models.PurchaseOrderPending))
	require.NoError(t, err)

	product, err := m.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	v1 := product.Variant("v1")
	assert.Equal(t, 10, v1.StockQuantity)
	assert.Equal(t, models.ReorderIdle, v1.ReorderStatus)
	assert.True(t, v1.IsInStock())
	assert.Equal(t, 4, product.Variant("v2").StockQuantity)
	assert.True(t, product.InStock)
}

func TestReceiptConcurrentVariantReceiptsKeepBothUpdates(t *testing.T) {
	m := store.NewMemoryStore(0)
	handler := NewReceiptHandler(m, nil, nil)

	m.PutProduct(&models.Product{ID: "p1", Name: "Shirt", TrackInventory: true, HasVariants: true,
		Variants: models.Variants{
			{ID: "v1", TrackInventory: true, StockQuantity: 1},
			{ID: "v2", TrackInventory: true, StockQuantity: 2},
		}})

	var wg sync.WaitGroup
	for _, variantID := range []string{"v1", "v2"} {
		wg.Add(1)
		go func(variantID string) {
			defer wg.Done()
			order := models.PurchaseOrder{ID: "po-" + variantID, ProductID: "p1", VariantID: strPtr(variantID), Quantity: 5}
			assert.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), receivedEvent(m, order, models.PurchaseOrderPending)))
		}(variantID)
	}
	wg.Wait()

	product, err := m.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 6, product.Variant("v1").StockQuantity)
	assert.Equal(t, 7, product.Variant("v2").StockQuantity)
}

func TestReceiptIgnoresOtherTransitions(t *testing.T) {
	order := models.PurchaseOrder{ID: "po-1", ProductID: "p1", Quantity: 50}
	pending := order
	pending.Status = models.PurchaseOrderPending
	received := order
	received.Status = models.PurchaseOrderReceived

	tests := []struct {
		name  string
		event *models.PurchaseOrderUpdatedEvent
	}{
		{"already received", &models.PurchaseOrderUpdatedEvent{Before: &received, After: &received}},
		{"still pending", &models.PurchaseOrderUpdatedEvent{Before: &pending, After: &pending}},
		{"created", &models.PurchaseOrderUpdatedEvent{After: &pending}},
		{"deleted", &models.PurchaseOrderUpdatedEvent{Before: &pending}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := store.NewMemoryStore(0)
			publisher := &fakePublisher{}
			handler := NewReceiptHandler(m, publisher, nil)
			m.PutProduct(&models.Product{ID: "p1", TrackInventory: true, StockQuantity: 3})
			m.PutPurchaseOrder(received)

			require.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), tt.event))

			product, _ := m.GetProduct(context.Background(), "p1")
			assert.Equal(t, 3, product.StockQuantity)
			assert.Empty(t, publisher.Events())
		})
	}
}

func TestReceiptMissingReferencesAreDropped(t *testing.T) {
	m := store.NewMemoryStore(0)
	publisher := &fakePublisher{}
	handler := NewReceiptHandler(m, publisher, nil)
	m.PutProduct(&models.Product{ID: "p1", TrackInventory: true, HasVariants: true,
		Variants: models.Variants{{ID: "v1", StockQuantity: 1}}})

	missingProduct := models.PurchaseOrder{ID: "po-1", ProductID: "gone", Quantity: 5}
	assert.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), receivedEvent(m, missingProduct, models.PurchaseOrderPending)))

	missingVariant := models.PurchaseOrder{ID: "po-2", ProductID: "p1", VariantID: strPtr("v9"), Quantity: 5}
	assert.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), receivedEvent(m, missingVariant, models.PurchaseOrderPending)))

	product, _ := m.GetProduct(context.Background(), "p1")
	assert.Equal(t, 1, product.Variant("v1").StockQuantity)
	assert.Empty(t, publisher.Events())
}

func TestReceiptDeduplicatesRedeliveredEvents(t *testing.T) {
	m := store.NewMemoryStore(0)
	handler := NewReceiptHandler(m, nil, newFakeDeduper())
	m.PutProduct(&models.Product{ID: "p1", TrackInventory: true, StockQuantity: 3})

	event := receivedEvent(m, models.PurchaseOrder{ID: "po-1", ProductID: "p1", Quantity: 50}, models.PurchaseOrderPending)
	require.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), event))
	require.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), event))

	product, _ := m.GetProduct(context.Background(), "p1")
	assert.Equal(t, 53, product.StockQuantity)
}

func TestReceiptRestockReachesSubscribers(t *testing.T) {
	m := store.NewMemoryStore(0)
	notifier := NewNotifier(m, "admin")
	backInStock := NewBackInStockHandler(NewSubscriberFanout(m, notifier), nil)
	publisher := &fakePublisher{forward: backInStock.HandleProductUpdated}
	handler := NewReceiptHandler(m, publisher, nil)

	m.PutProduct(&models.Product{ID: "p1", Name: "Mug", TrackInventory: true, StockQuantity: 0,
		ReorderStatus: models.ReorderInProgress})
	m.PutSubscription(pendingSub("s1", "u1", "p1", nil))

	event := receivedEvent(m, models.PurchaseOrder{ID: "po-1", ProductID: "p1", Quantity: 50}, models.PurchaseOrderPending)
	require.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), event))

	sub, _ := m.Subscription("s1")
	assert.Equal(t, models.SubscriptionNotified, sub.Status)
	assert.Len(t, notificationsFor(m, "u1"), 1)
}

func TestReceiptKeepsSiblingVariantFlags(t *testing.T) {
	m := store.NewMemoryStore(0)
	handler := NewReceiptHandler(m, nil, nil)

	m.PutProduct(&models.Product{ID: "p1", Name: "Shirt", TrackInventory: true, HasVariants: true,
		Variants: models.Variants{
			{ID: "a", TrackInventory: true, StockQuantity: 0, ReorderStatus: models.ReorderInProgress, InStock: boolPtr(false)},
			{ID: "b", StockQuantity: 0, InStock: boolPtr(true)},
		}})

	order := models.PurchaseOrder{ID: "po-a", ProductID: "p1", VariantID: strPtr("a"), Quantity: 5}
	require.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), receivedEvent(m, order, models.PurchaseOrderPending)))

	product, err := m.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Variant("a").StockQuantity)
	assert.True(t, product.Variant("a").IsInStock())
	assert.True(t, product.Variant("b").IsInStock(), "untracked variant b keeps its cached flag")
	assert.Equal(t, 0, product.Variant("b").StockQuantity)
	assert.True(t, product.InStock)
}

func TestReceiptOnVariantProductKeepsDerivedFlag(t *testing.T) {
	m := store.NewMemoryStore(0)
	publisher := &fakePublisher{}
	handler := NewReceiptHandler(m, publisher, nil)

	m.PutProduct(&models.Product{ID: "p1", Name: "Shirt", TrackInventory: true, HasVariants: true, InStock: false,
		Variants: models.Variants{{ID: "a", TrackInventory: true, InStock: boolPtr(false)}}})

	order := models.PurchaseOrder{ID: "po-1", ProductID: "p1", Quantity: 10}
	require.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), receivedEvent(m, order, models.PurchaseOrderPending)))

	product, err := m.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, product.StockQuantity)
	assert.False(t, product.InStock)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Before.InStock)
	assert.False(t, events[0].After.InStock)
}

func TestReceiptUsesStoredOrder(t *testing.T) {
	m := store.NewMemoryStore(0)
	handler := NewReceiptHandler(m, nil, nil)
	m.PutProduct(&models.Product{ID: "p1", TrackInventory: true, StockQuantity: 3})

	event := receivedEvent(m, models.PurchaseOrder{ID: "po-1", ProductID: "p1", Quantity: 50}, models.PurchaseOrderPending)
	event.After.Quantity = 500

	require.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), event))

	product, _ := m.GetProduct(context.Background(), "p1")
	assert.Equal(t, 53, product.StockQuantity)
}

func TestReceiptDropsDeletedOrder(t *testing.T) {
	m := store.NewMemoryStore(0)
	publisher := &fakePublisher{}
	handler := NewReceiptHandler(m, publisher, nil)
	m.PutProduct(&models.Product{ID: "p1", TrackInventory: true, StockQuantity: 3})

	pending := models.PurchaseOrder{ID: "po-gone", ProductID: "p1", Quantity: 50, Status: models.PurchaseOrderPending}
	received := pending
	received.Status = models.PurchaseOrderReceived
	event := &models.PurchaseOrderUpdatedEvent{Before: &pending, After: &received}

	require.NoError(t, handler.HandlePurchaseOrderUpdated(context.Background(), event))

	product, _ := m.GetProduct(context.Background(), "p1")
	assert.Equal(t, 3, product.StockQuantity)
	assert.Empty(t, publisher.Events())
}
