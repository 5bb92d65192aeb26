package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"restock-service/internal/models"
)

type memState struct {
	products      map[string]*models.Product
	subscriptions map[string]models.Subscription
	orders        map[string]models.PurchaseOrder
	suppliers     map[string]models.Supplier
	users         map[string]models.User
	notifications []models.Notification
	alerts        []models.LowStockAlert
	unread        map[string]int
}

// clone copies the maps so a group or chunk can be rolled back. Stored
// products are replaced on write, never mutated, so sharing pointers is safe.
func (s *memState) clone() *memState {
	c := &memState{
		products:      make(map[string]*models.Product, len(s.products)),
		subscriptions: make(map[string]models.Subscription, len(s.subscriptions)),
		orders:        make(map[string]models.PurchaseOrder, len(s.orders)),
		suppliers:     s.suppliers,
		users:         s.users,
		notifications: s.notifications[:len(s.notifications):len(s.notifications)],
		alerts:        s.alerts[:len(s.alerts):len(s.alerts)],
		unread:        make(map[string]int, len(s.unread)),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.subscriptions {
		c.subscriptions[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.unread {
		c.unread[k] = v
	}
	return c
}

// MemoryStore is an in-memory implementation of the store contract
type MemoryStore struct {
	mu          sync.Mutex
	state       *memState
	maxBatchOps int
	commits     int
}

// NewMemoryStore creates a new instance of MemoryStore
func NewMemoryStore(maxBatchOps int) *MemoryStore {
	if maxBatchOps <= 0 {
		maxBatchOps = DefaultMaxBatchOps
	}
	return &MemoryStore{
		maxBatchOps: maxBatchOps,
		state: &memState{
			products:      map[string]*models.Product{},
			subscriptions: map[string]models.Subscription{},
			orders:        map[string]models.PurchaseOrder{},
			suppliers:     map[string]models.Supplier{},
			users:         map[string]models.User{},
			unread:        map[string]int{},
		},
	}
}

// PutProduct inserts or replaces a product
func (m *MemoryStore) PutProduct(p *models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[p.ID] = p.Clone()
}

// PutPurchaseOrder inserts or replaces a purchase order
func (m *MemoryStore) PutPurchaseOrder(o models.PurchaseOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.orders[o.ID] = o
}

// DeleteProduct removes a product
func (m *MemoryStore) DeleteProduct(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state.products, id)
}

// PutSubscription inserts or replaces a subscription
func (m *MemoryStore) PutSubscription(sub models.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.subscriptions[sub.ID] = sub
}

// PutUser inserts or replaces a user
func (m *MemoryStore) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = u
}

// PutSupplier inserts or replaces a supplier
func (m *MemoryStore) PutSupplier(s models.Supplier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.suppliers[s.ID] = s
}

// GetProduct retrieves a product by ID
func (m *MemoryStore) GetProduct(_ context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

// ListTrackedProducts retrieves every product with inventory tracking enabled
func (m *MemoryStore) ListTrackedProducts(_ context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var products []models.Product
	for _, p := range m.state.products {
		if p.TrackInventory {
			products = append(products, *p.Clone())
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// ListPendingSubscriptions retrieves every subscription not yet notified
func (m *MemoryStore) ListPendingSubscriptions(_ context.Context) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterSubscriptions(func(s models.Subscription) bool { return s.Pending() }), nil
}

// FindPendingSubscriptions retrieves pending subscriptions for one product
func (m *MemoryStore) FindPendingSubscriptions(_ context.Context, productID string, variantID *string) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterSubscriptions(func(s models.Subscription) bool {
		if !s.Pending() || s.ProductID != productID {
			return false
		}
		if variantID == nil {
			return s.VariantID == nil
		}
		return s.VariantID != nil && *s.VariantID == *variantID
	}), nil
}

func (m *MemoryStore) filterSubscriptions(keep func(models.Subscription) bool) []models.Subscription {
	var subs []models.Subscription
	for _, s := range m.state.subscriptions {
		if keep(s) {
			subs = append(subs, s)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs
}

// ListUsersByRole retrieves users carrying the given role tag
func (m *MemoryStore) ListUsersByRole(_ context.Context, role string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var users []models.User
	for _, u := range m.state.users {
		if u.Role == role {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// GetSupplier retrieves a supplier by ID
func (m *MemoryStore) GetSupplier(_ context.Context, id string) (*models.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("supplier %s: %w", id, ErrNotFound)
	}
	return &s, nil
}

// GetPurchaseOrder retrieves a purchase order by ID
func (m *MemoryStore) GetPurchaseOrder(_ context.Context, id string) (*models.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return nil, fmt.Errorf("purchase order %s: %w", id, ErrNotFound)
	}
	return &o, nil
}

// UnreadCount returns the unread notification counter of a user
func (m *MemoryStore) UnreadCount(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.unread[userID], nil
}

// Subscription returns a subscription by ID
func (m *MemoryStore) Subscription(id string) (models.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.subscriptions[id]
	return s, ok
}

// Notifications returns a copy of every inbox entry in write order
func (m *MemoryStore) Notifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Notification(nil), m.state.notifications...)
}

// Alerts returns a copy of every low stock alert in write order
func (m *MemoryStore) Alerts() []models.LowStockAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LowStockAlert(nil), m.state.alerts...)
}

// PurchaseOrders returns every purchase order ordered by creation time
func (m *MemoryStore) PurchaseOrders() []models.PurchaseOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]models.PurchaseOrder, 0, len(m.state.orders))
	for _, o := range m.state.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders
}

// Commits returns how many chunks were committed
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// IncrementProductStock adds delta to the main product stock and clears the reorder flag
func (m *MemoryStore) IncrementProductStock(_ context.Context, id string, delta int) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.state.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	p := current.Clone()
	p.StockQuantity += delta
	p.ReorderStatus = models.ReorderIdle
	if !p.HasVariants {
		p.InStock = p.Available()
	}
	m.state.products[id] = p
	return p.Clone(), nil
}

// MutateProductNow runs a read-modify-write of a whole product under the store lock
func (m *MemoryStore) MutateProductNow(_ context.Context, id string, fn func(p *models.Product) error) (*models.Product, *models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.state.products[id]
	if !ok {
		return nil, nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	after := current.Clone()
	if err := fn(after); err != nil {
		return nil, nil, err
	}
	m.state.products[id] = after
	return current.Clone(), after.Clone(), nil
}

// Commit applies the batch chunk by chunk with the same group semantics as Store
func (m *MemoryStore) Commit(_ context.Context, batch *Batch) (CommitResult, error) {
	var result CommitResult

	chunks, err := batch.Chunks(m.maxBatchOps)
	if err != nil {
		return result, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, chunk := range chunks {
		working := m.state.clone()
		applied, skipped := 0, 0
		for _, group := range chunk {
			savepoint := working.clone()
			ok, err := working.applyGroup(group)
			if err != nil {
				return result, fmt.Errorf("failed to commit chunk %d/%d: %w", i+1, len(chunks), err)
			}
			if ok {
				applied++
			} else {
				working = savepoint
				skipped++
			}
		}
		m.state = working
		m.commits++
		result.Applied += applied
		result.Skipped += skipped
		result.Chunks++
	}
	return result, nil
}

func (s *memState) applyGroup(group []Op) (bool, error) {
	for _, op := range group {
		ok, err := s.applyOp(op)
		if err != nil {
			return false, fmt.Errorf("%s: %w", op.opName(), err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *memState) applyOp(op Op) (bool, error) {
	switch o := op.(type) {
	case InsertNotification:
		s.notifications = append(s.notifications, *o.Notification)
	case IncrementUnread:
		s.unread[o.UserID]++
	case InsertAlert:
		s.alerts = append(s.alerts, *o.Alert)
	case InsertPurchaseOrder:
		if _, exists := s.orders[o.Order.ID]; exists {
			return false, fmt.Errorf("duplicate purchase order %s", o.Order.ID)
		}
		s.orders[o.Order.ID] = *o.Order
	case MarkSubscriptionNotified:
		sub, ok := s.subscriptions[o.SubscriptionID]
		if !ok {
			return false, nil
		}
		if err := sub.MarkNotified(o.At); err != nil {
			return false, nil
		}
		s.subscriptions[o.SubscriptionID] = sub
	case DeleteSubscription:
		delete(s.subscriptions, o.SubscriptionID)
	case MutateProduct:
		current, ok := s.products[o.ProductID]
		if !ok {
			return false, nil
		}
		p := current.Clone()
		if !o.Apply(p) {
			return false, nil
		}
		s.products[o.ProductID] = p
	default:
		return false, fmt.Errorf("unsupported op %T", op)
	}
	return true, nil
}
