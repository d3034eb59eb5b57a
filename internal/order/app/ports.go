package app

import (
	"context"

	catalog "github.com/studyhub/marketplace-api/internal/catalog/domain"
	identity "github.com/studyhub/marketplace-api/internal/identity/domain"
	"github.com/studyhub/marketplace-api/internal/order/domain"
)

// OrderRepository persists the Order aggregate together with its items.
type OrderRepository interface {
	// Insert stores a new order and its items, assigning ids. Returns
	// domain.ErrOrderCodeTaken when the generated order code collides.
	Insert(ctx context.Context, o *domain.Order) error

	// Update persists the mutable lifecycle fields of an existing order.
	// Items are immutable after creation and are not touched.
	Update(ctx context.Context, o *domain.Order) error

	// GetByID loads an order with its items, or domain.ErrOrderNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Order, error)

	ListByBuyer(ctx context.Context, buyerID int64, status domain.Status) ([]domain.Order, error)
	ListBySeller(ctx context.Context, sellerID int64, status domain.Status) ([]domain.Order, error)

	CountByBuyer(ctx context.Context, buyerID int64) (map[domain.Status]int64, error)
	CountBySeller(ctx context.Context, sellerID int64) (map[domain.Status]int64, error)
}

// ProductGate owns product availability on behalf of the order lifecycle.
type ProductGate interface {
	// GetByID loads a product or catalog domain.ErrProductNotFound.
	GetByID(ctx context.Context, id int64) (*catalog.Product, error)

	// Reserve flips every product AVAILABLE -> PENDING, all-or-nothing.
	// If any product in the batch is not AVAILABLE it returns
	// domain.ErrProductNotAvailable and mutates nothing.
	Reserve(ctx context.Context, ids []int64) error

	// Release flips products back to AVAILABLE (cancellation compensation).
	Release(ctx context.Context, ids []int64) error

	// Finalize marks products SOLD (order completion).
	Finalize(ctx context.Context, ids []int64) error
}

// Identity resolves the authenticated principal and loads user summaries.
type Identity interface {
	CurrentUser(ctx context.Context) (identity.User, error)
	GetByID(ctx context.Context, id int64) (identity.User, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]identity.User, error)
}

// Notifier is the best-effort notification sink invoked once on order
// creation. Errors are logged by the caller and never fail the creation.
type Notifier interface {
	OrderCreated(ctx context.Context, o *domain.Order, buyer identity.User) error
}

// TxManager runs fn inside a single atomic unit of work. Repository calls
// made with the ctx passed to fn join that transaction.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CountsCache is a read-side cache for per-user status-count summaries.
// A miss is not an error; Set/Invalidate failures are swallowed by the
// implementation (the database remains the source of truth).
type CountsCache interface {
	GetCounts(ctx context.Context, role string, userID int64) (map[domain.Status]int64, bool)
	SetCounts(ctx context.Context, role string, userID int64, counts map[domain.Status]int64)
	InvalidateCounts(ctx context.Context, userIDs ...int64)
}
