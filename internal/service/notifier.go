package service

import (
	"context"
	"fmt"
	"time"

	"restock-service/internal/models"
	"restock-service/internal/store"
	"restock-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is the payload of one inbox notification
type Message struct {
	UserID    string
	Kind      models.NotificationKind
	Title     string
	Body      string
	Link      string
	ProductID string
}

// Notifier writes inbox entries together with the recipient's unread counter
type Notifier struct {
	store     Store
	adminRole string
	logger    *zap.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(store Store, adminRole string) *Notifier {
	return &Notifier{
		store:     store,
		adminRole: adminRole,
		logger:    util.ComponentLogger("notifier"),
	}
}

// Ops returns the writes for one notification: the inbox entry and an atomic
// unread increment. Callers add them to a batch group so both land together.
func (n *Notifier) Ops(msg Message) []store.Op {
	entry := &models.Notification{
		ID:        uuid.New().String(),
		UserID:    msg.UserID,
		Kind:      msg.Kind,
		Title:     msg.Title,
		Message:   msg.Body,
		Link:      msg.Link,
		CreatedAt: time.Now(),
	}
	if msg.ProductID != "" {
		productID := msg.ProductID
		entry.ProductID = &productID
	}

	return []store.Op{
		store.InsertNotification{Notification: entry},
		store.IncrementUnread{UserID: msg.UserID},
	}
}

// Send writes a single notification immediately
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	batch := store.NewBatch()
	batch.Add(n.Ops(msg)...)
	if _, err := n.store.Commit(ctx, batch); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	util.NotificationsSentTotal.WithLabelValues(string(msg.Kind)).Inc()
	return nil
}

// AlertAdmins records the alert and notifies every admin user. It returns the
// number of admins notified.
func (n *Notifier) AlertAdmins(ctx context.Context, alert *models.LowStockAlert) (int, error) {
	ctx, span := util.StartSpan(ctx, "Notifier.AlertAdmins")
	defer span.End()

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Status == "" {
		alert.Status = models.AlertStatusActive
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	admins, err := n.store.ListUsersByRole(ctx, n.adminRole)
	if err != nil {
		return 0, fmt.Errorf("failed to list admins: %w", err)
	}

	batch := store.NewBatch()
	batch.Add(store.InsertAlert{Alert: alert})
	for _, admin := range admins {
		batch.Add(n.Ops(lowStockMessage(admin.ID, alert))...)
	}

	if _, err := n.store.Commit(ctx, batch); err != nil {
		return 0, fmt.Errorf("failed to write low stock alert: %w", err)
	}

	util.LowStockAlertsTotal.Inc()
	util.NotificationsSentTotal.WithLabelValues(string(models.NotificationLowStock)).Add(float64(len(admins)))

	n.logger.Info("Low stock alert raised",
		zap.String("product_id", alert.ProductID),
		zap.Stringp("variant_id", alert.VariantID),
		zap.Int("current_stock", alert.CurrentStock),
		zap.Int("threshold", alert.Threshold),
		zap.Int("admins", len(admins)))

	return len(admins), nil
}

func productLink(productID string) string {
	return "/products/" + productID
}

func backInStockMessage(userID string, product *models.Product, variantID *string) Message {
	body := fmt.Sprintf("%s is back in stock!", product.Name)
	if variantID != nil {
		if v := product.Variant(*variantID); v != nil && v.Name != "" {
			body = fmt.Sprintf("%s (%s) is back in stock!", product.Name, v.Name)
		}
	}
	return Message{
		UserID:    userID,
		Kind:      models.NotificationBackInStock,
		Title:     "Product Back in Stock",
		Body:      body,
		Link:      productLink(product.ID),
		ProductID: product.ID,
	}
}

func lowStockMessage(userID string, alert *models.LowStockAlert) Message {
	return Message{
		UserID: userID,
		Kind:   models.NotificationLowStock,
		Title:  "Low Stock Alert",
		Body: fmt.Sprintf("%s is running low: %d left (threshold %d)",
			alert.ProductName, alert.CurrentStock, alert.Threshold),
		Link:      productLink(alert.ProductID),
		ProductID: alert.ProductID,
	}
}

func purchaseOrderMessage(userID string, product *models.Product, order *models.PurchaseOrder) Message {
	return Message{
		UserID: userID,
		Kind:   models.NotificationPurchaseOrder,
		Title:  "New Purchase Order",
		Body: fmt.Sprintf("Purchase order %s: %d units of %s",
			order.ID, order.Quantity, product.Name),
		Link:      "/purchase-orders/" + order.ID,
		ProductID: product.ID,
	}
}
