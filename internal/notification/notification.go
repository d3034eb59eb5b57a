// Package notification delivers the order-created notification to the
// seller. Delivery is best-effort: the order transaction has already
// committed when this runs, and any failure here is logged by the caller,
// never surfaced to the buyer.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	identity "github.com/studyhub/marketplace-api/internal/identity/domain"
	orderdomain "github.com/studyhub/marketplace-api/internal/order/domain"
)

// Type labels the notification kind.
type Type string

const TypeProductOrdered Type = "PRODUCT_ORDERED"

// Notification is the persisted in-app notification row.
type Notification struct {
	ID          int64
	RecipientID int64
	SenderID    int64
	Type        Type
	Title       string
	Content     string
	OrderID     int64
	IsRead      bool
	CreatedAt   time.Time
}

// Repository stores notifications for the in-app inbox.
type Repository interface {
	Insert(ctx context.Context, n *Notification) error
}

// Publisher pushes the notification payload to the delivery transport.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// Service implements the order core's Notifier port.
type Service struct {
	repo      Repository
	publisher Publisher
}

func NewService(repo Repository, publisher Publisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// OrderCreated records and publishes a notification telling the seller a new
// order arrived. Both sinks are attempted; errors are joined so the caller
// logs every failure.
func (s *Service) OrderCreated(ctx context.Context, o *orderdomain.Order, buyer identity.User) error {
	n := &Notification{
		RecipientID: o.SellerID,
		SenderID:    buyer.ID,
		Type:        TypeProductOrdered,
		Title:       "New order",
		Content:     fmt.Sprintf("%s ordered %s", buyer.FullName, summarizeItems(o.Items)),
		OrderID:     o.ID,
		CreatedAt:   time.Now().UTC(),
	}

	var errs []error
	if err := s.repo.Insert(ctx, n); err != nil {
		errs = append(errs, fmt.Errorf("store notification: %w", err))
	}

	payload := orderCreatedPayload{
		OrderID:     o.ID,
		OrderCode:   o.OrderCode,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        string(n.Type),
		Title:       n.Title,
		Content:     n.Content,
		CreatedAt:   n.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, o.OrderCode, payload); err != nil {
		errs = append(errs, fmt.Errorf("publish notification: %w", err))
	}

	return errors.Join(errs...)
}

type orderCreatedPayload struct {
	OrderID     int64     `json:"orderId"`
	OrderCode   string    `json:"orderCode"`
	RecipientID int64     `json:"recipientId"`
	SenderID    int64     `json:"senderId"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
}

// summarizeItems names at most two product titles, then an ellipsis.
func summarizeItems(items []orderdomain.OrderItem) string {
	titles := make([]string, 0, 2)
	for _, it := range items {
		if len(titles) == 2 {
			break
		}
		titles = append(titles, it.ProductTitle)
	}
	summary := strings.Join(titles, ", ")
	if len(items) > 2 {
		summary += "..."
	}
	return summary
}
