// Package app orchestrates the order lifecycle: it validates preconditions,
// drives the Order aggregate and the product availability gate inside one
// atomic unit of work, and serves the buyer/seller read side.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	catalog "github.com/studyhub/marketplace-api/internal/catalog/domain"
	identity "github.com/studyhub/marketplace-api/internal/identity/domain"
	"github.com/studyhub/marketplace-api/internal/order/domain"
	"github.com/studyhub/marketplace-api/internal/pkg/metrics"
)

// orderCodeAttempts is the retry budget for order code generation when the
// generated code collides with an existing one.
const orderCodeAttempts = 3

// CreateOrderInput is the validated creation request.
type CreateOrderInput struct {
	ProductIDs      []int64
	DeliveryMethod  domain.DeliveryMethod
	DeliveryAddress string
	DeliveryPhone   string
	DeliveryNotes   string
}

// OrderDetail is an order together with the user summaries a representation
// needs. Users are loaded explicitly, never through implicit traversal.
type OrderDetail struct {
	Order       domain.Order
	Buyer       identity.User
	Seller      identity.User
	CancelledBy *identity.User
}

type Service struct {
	orders   OrderRepository
	products ProductGate
	users    Identity
	notifier Notifier
	tx       TxManager
	counts   CountsCache
	metrics  *metrics.OrderMetrics

	now func() time.Time
}

func NewService(
	orders OrderRepository,
	products ProductGate,
	users Identity,
	notifier Notifier,
	tx TxManager,
	counts CountsCache,
	m *metrics.OrderMetrics,
) *Service {
	return &Service{
		orders:   orders,
		products: products,
		users:    users,
		notifier: notifier,
		tx:       tx,
		counts:   counts,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create places a new order for the authenticated buyer.
//
// Validation order (first violation wins): items non-empty, every product
// loadable, all products share one seller, buyer != seller, every product
// AVAILABLE. Reservation and insertion then run in one transaction; the
// conditional update inside Reserve is the definitive availability check
// under concurrency, the pre-check only produces the friendlier fail-fast
// error.
func (s *Service) Create(ctx context.Context, in CreateOrderInput) (*OrderDetail, error) {
	buyer, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	if len(in.ProductIDs) == 0 {
		s.metrics.Observe("create", "rejected")
		return nil, domain.ErrEmptyItems
	}

	var sellerID int64
	products := make([]*catalog.Product, 0, len(in.ProductIDs))
	for i, id := range in.ProductIDs {
		p, err := s.products.GetByID(ctx, id)
		if err != nil {
			s.metrics.Observe("create", "rejected")
			return nil, err
		}
		if i == 0 {
			sellerID = p.SellerID
		} else if p.SellerID != sellerID {
			s.metrics.Observe("create", "rejected")
			return nil, domain.ErrMultipleSellers
		}
		products = append(products, p)
	}

	if buyer.ID == sellerID {
		s.metrics.Observe("create", "rejected")
		return nil, domain.ErrBuyerSellerSame
	}

	items := make([]domain.OrderItem, 0, len(products))
	for _, p := range products {
		if !p.IsAvailable() {
			s.metrics.Observe("create", "rejected")
			return nil, domain.ErrProductNotAvailable
		}
		items = append(items, domain.OrderItem{
			ProductID:       p.ID,
			PriceSnapshot:   p.Price,
			ProductTitle:    p.Title,
			ProductImageURL: p.PrimaryImageURL,
		})
	}

	now := s.now()
	order := &domain.Order{
		BuyerID:         buyer.ID,
		SellerID:        sellerID,
		Status:          domain.StatusPending,
		DeliveryMethod:  in.DeliveryMethod,
		DeliveryAddress: in.DeliveryAddress,
		DeliveryPhone:   in.DeliveryPhone,
		DeliveryNotes:   in.DeliveryNotes,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// The whole unit of work is retried on an order code collision so that
	// reservation and insertion always commit (or abort) together.
	for attempt := 0; ; attempt++ {
		order.OrderCode = generateOrderCode()

		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := s.products.Reserve(ctx, in.ProductIDs); err != nil {
				return err
			}
			return s.orders.Insert(ctx, order)
		})
		if errors.Is(err, domain.ErrOrderCodeTaken) && attempt+1 < orderCodeAttempts {
			continue
		}
		break
	}
	if err != nil {
		s.metrics.Observe("create", "rejected")
		return nil, err
	}

	s.metrics.Observe("create", "ok")
	s.invalidateCounts(ctx, order)

	// Best-effort side effect: a notify failure never rolls back the order.
	if err := s.notifier.OrderCreated(ctx, order, buyer); err != nil {
		slog.ErrorContext(ctx, "order created notification failed",
			"order_id", order.ID, "order_code", order.OrderCode, "error", err)
	}

	return s.detail(ctx, order, &buyer)
}

// Confirm moves PENDING -> CONFIRMED (seller only).
func (s *Service) Confirm(ctx context.Context, orderID int64) (*OrderDetail, error) {
	return s.applyTransition(ctx, orderID, domain.EventConfirm, domain.TransitionArgs{})
}

// UpdateShippingFee sets the fee and moves CONFIRMED -> SHIPPING_FEE_UPDATED
// (seller only). The fee must be non-negative.
func (s *Service) UpdateShippingFee(ctx context.Context, orderID int64, fee int) (*OrderDetail, error) {
	if fee < 0 {
		return nil, &domain.ValidationError{Field: "shippingFee", Message: "must be greater than or equal to 0"}
	}
	return s.applyTransition(ctx, orderID, domain.EventUpdateShippingFee, domain.TransitionArgs{ShippingFee: fee})
}

// MarkShipping moves CONFIRMED/SHIPPING_FEE_UPDATED -> SHIPPING (seller only).
func (s *Service) MarkShipping(ctx context.Context, orderID int64) (*OrderDetail, error) {
	return s.applyTransition(ctx, orderID, domain.EventMarkShipping, domain.TransitionArgs{})
}

// MarkDelivered moves SHIPPING -> DELIVERED (seller only).
func (s *Service) MarkDelivered(ctx context.Context, orderID int64) (*OrderDetail, error) {
	return s.applyTransition(ctx, orderID, domain.EventMarkDelivered, domain.TransitionArgs{})
}

// Complete moves DELIVERED -> COMPLETED (buyer only) and marks every
// referenced product SOLD in the same transaction.
func (s *Service) Complete(ctx context.Context, orderID int64) (*OrderDetail, error) {
	return s.applyTransition(ctx, orderID, domain.EventComplete, domain.TransitionArgs{})
}

// Cancel moves PENDING/CONFIRMED -> CANCELLED (buyer or seller) and releases
// every referenced product back to AVAILABLE in the same transaction.
func (s *Service) Cancel(ctx context.Context, orderID int64, reason string) (*OrderDetail, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &domain.ValidationError{Field: "reason", Message: "is required"}
	}
	return s.applyTransition(ctx, orderID, domain.EventCancel, domain.TransitionArgs{CancellationReason: reason})
}

// applyTransition is the single orchestration path for every lifecycle
// event after creation: load, guard + mutate via the transition table,
// persist, and run the product side effect of the terminal transitions —
// all inside one transaction.
func (s *Service) applyTransition(ctx context.Context, orderID int64, event domain.Event, args domain.TransitionArgs) (*OrderDetail, error) {
	actor, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.Apply(event, actor.ID, s.now(), args); err != nil {
			return err
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return err
		}

		switch event {
		case domain.EventComplete:
			if err := s.products.Finalize(ctx, o.ProductIDs()); err != nil {
				return err
			}
		case domain.EventCancel:
			if err := s.products.Release(ctx, o.ProductIDs()); err != nil {
				return err
			}
		}

		order = o
		return nil
	})
	if err != nil {
		s.metrics.Observe(string(event), outcomeFor(err))
		return nil, err
	}

	s.metrics.Observe(string(event), "ok")
	s.invalidateCounts(ctx, order)
	return s.detail(ctx, order, nil)
}

// ListBought returns the authenticated user's orders as buyer, filtered by
// status.
func (s *Service) ListBought(ctx context.Context, status domain.Status) ([]OrderDetail, error) {
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByBuyer(ctx, user.ID, status)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, orders)
}

// ListSold returns the authenticated user's orders as seller, filtered by
// status.
func (s *Service) ListSold(ctx context.Context, status domain.Status) ([]OrderDetail, error) {
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListBySeller(ctx, user.ID, status)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, orders)
}

// CountsForBuyer returns one count per status for the authenticated user as
// buyer. Missing statuses default to 0, never absent.
func (s *Service) CountsForBuyer(ctx context.Context) (map[domain.Status]int64, error) {
	return s.statusCounts(ctx, "buyer", s.orders.CountByBuyer)
}

// CountsForSeller is CountsForBuyer for the seller side.
func (s *Service) CountsForSeller(ctx context.Context) (map[domain.Status]int64, error) {
	return s.statusCounts(ctx, "seller", s.orders.CountBySeller)
}

func (s *Service) statusCounts(ctx context.Context, role string, query func(context.Context, int64) (map[domain.Status]int64, error)) (map[domain.Status]int64, error) {
	user, err := s.users.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	if counts, ok := s.counts.GetCounts(ctx, role, user.ID); ok {
		return counts, nil
	}

	counts, err := query(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	normalized := make(map[domain.Status]int64, len(domain.AllStatuses))
	for _, st := range domain.AllStatuses {
		normalized[st] = counts[st]
	}

	s.counts.SetCounts(ctx, role, user.ID, normalized)
	return normalized, nil
}

// detail assembles an OrderDetail, reusing buyer when the caller already
// holds it.
func (s *Service) detail(ctx context.Context, o *domain.Order, buyer *identity.User) (*OrderDetail, error) {
	d := &OrderDetail{Order: *o}

	if buyer != nil {
		d.Buyer = *buyer
	} else {
		u, err := s.users.GetByID(ctx, o.BuyerID)
		if err != nil {
			return nil, err
		}
		d.Buyer = u
	}

	seller, err := s.users.GetByID(ctx, o.SellerID)
	if err != nil {
		return nil, err
	}
	d.Seller = seller

	if o.CancelledByID != nil {
		u, err := s.users.GetByID(ctx, *o.CancelledByID)
		if err != nil {
			return nil, err
		}
		d.CancelledBy = &u
	}
	return d, nil
}

// details batch-loads every user referenced by the list before assembling.
func (s *Service) details(ctx context.Context, orders []domain.Order) ([]OrderDetail, error) {
	idSet := make(map[int64]struct{})
	for _, o := range orders {
		idSet[o.BuyerID] = struct{}{}
		idSet[o.SellerID] = struct{}{}
		if o.CancelledByID != nil {
			idSet[*o.CancelledByID] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]OrderDetail, 0, len(orders))
	for _, o := range orders {
		d := OrderDetail{
			Order:  o,
			Buyer:  users[o.BuyerID],
			Seller: users[o.SellerID],
		}
		if o.CancelledByID != nil {
			if u, ok := users[*o.CancelledByID]; ok {
				d.CancelledBy = &u
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// invalidateCounts drops the cached summaries of both parties after any
// lifecycle change.
func (s *Service) invalidateCounts(ctx context.Context, o *domain.Order) {
	s.counts.InvalidateCounts(ctx, o.BuyerID, o.SellerID)
}

func outcomeFor(err error) string {
	var notAuthorized *domain.NotAuthorizedError
	var invalid *domain.InvalidTransitionError
	switch {
	case errors.As(err, &notAuthorized):
		return "not_authorized"
	case errors.As(err, &invalid):
		return "invalid_transition"
	case errors.Is(err, domain.ErrOrderNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// generateOrderCode builds a human-facing code: ORD plus 8 uppercase
// hex-alphanumeric characters drawn from a fresh UUID.
func generateOrderCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ORD%s", strings.ToUpper(raw[:8]))
}
