package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"restock-service/internal/models"
	"restock-service/internal/store"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

type fakeDeduper struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{keys: make(map[string]bool)}
}

func (d *fakeDeduper) CheckIdempotencyKey(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[key], nil
}

func (d *fakeDeduper) SetIdempotencyKey(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = true
	return nil
}

// fakePublisher records published events and optionally forwards them
type fakePublisher struct {
	mu      sync.Mutex
	events  []*models.ProductUpdatedEvent
	forward func(context.Context, *models.ProductUpdatedEvent) error
}

func (p *fakePublisher) PublishProductUpdated(ctx context.Context, event *models.ProductUpdatedEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	if p.forward != nil {
		return p.forward(ctx, event)
	}
	return nil
}

func (p *fakePublisher) Events() []*models.ProductUpdatedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.ProductUpdatedEvent(nil), p.events...)
}

// flakyStore fails product reads for selected ids
type flakyStore struct {
	*store.MemoryStore
	failProducts map[string]bool
}

var errBackend = errors.New("backend unavailable")

func (f *flakyStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if f.failProducts[id] {
		return nil, errBackend
	}
	return f.MemoryStore.GetProduct(ctx, id)
}

func pendingSub(id, userID, productID string, variantID *string) models.Subscription {
	return models.Subscription{
		ID:        id,
		UserID:    userID,
		ProductID: productID,
		VariantID: variantID,
		Status:    models.SubscriptionPending,
		CreatedAt: time.Now(),
	}
}

func notificationsFor(m *store.MemoryStore, userID string) []models.Notification {
	var out []models.Notification
	for _, n := range m.Notifications() {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}
