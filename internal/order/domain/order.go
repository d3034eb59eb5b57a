// Package domain holds the Order aggregate and its fulfillment state machine.
//
// An Order is a logistics record binding a buyer, a seller and one or more
// products. It moves strictly forward through its lifecycle; COMPLETED and
// CANCELLED are terminal. Every transition is guarded by a single policy
// table (see transitions.go) so that adding a state cannot silently skip an
// authorization or precondition check.
package domain

import "time"

// Status is the lifecycle state of an Order. Exactly one value at any time.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusConfirmed          Status = "CONFIRMED"
	StatusShippingFeeUpdated Status = "SHIPPING_FEE_UPDATED"
	StatusShipping           Status = "SHIPPING"
	StatusDelivered          Status = "DELIVERED"
	StatusCompleted          Status = "COMPLETED"
	StatusCancelled          Status = "CANCELLED"
)

// AllStatuses lists every valid status, in lifecycle order. Used by the
// read side to default missing counts to zero.
var AllStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusShippingFeeUpdated,
	StatusShipping,
	StatusDelivered,
	StatusCompleted,
	StatusCancelled,
}

// ParseStatus validates a raw status string (e.g. a query parameter).
func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// DeliveryMethod is how the seller hands the goods over.
type DeliveryMethod string

const (
	DeliveryShipper      DeliveryMethod = "SHIPPER"
	DeliveryHandDelivery DeliveryMethod = "HAND_DELIVERY"
	DeliveryBoth         DeliveryMethod = "BOTH"
)

// ParseDeliveryMethod validates a raw delivery method string.
func ParseDeliveryMethod(s string) (DeliveryMethod, bool) {
	switch DeliveryMethod(s) {
	case DeliveryShipper, DeliveryHandDelivery, DeliveryBoth:
		return DeliveryMethod(s), true
	}
	return "", false
}

// Order is the aggregate root. Parties and the cancelling user are held as
// ids; user details are loaded explicitly where a representation needs them.
type Order struct {
	ID        int64
	OrderCode string

	BuyerID  int64
	SellerID int64

	Status Status

	DeliveryMethod  DeliveryMethod
	DeliveryAddress string
	DeliveryPhone   string
	DeliveryNotes   string

	// ShippingFee is nil until the seller sets it via the
	// shipping-fee-update transition.
	ShippingFee *int

	ConfirmedAt          *time.Time
	ShippingFeeUpdatedAt *time.Time
	DeliveredAt          *time.Time
	CompletedAt          *time.Time
	CancelledAt          *time.Time

	CancellationReason string
	CancelledByID      *int64

	Items []OrderItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is one product reference within an Order. The price is a
// snapshot taken at order creation, so a later price change on the product
// does not silently change the buyer's total. Title and image are read
// through the live product at presentation time.
type OrderItem struct {
	ID            int64
	OrderID       int64
	ProductID     int64
	PriceSnapshot int
	CreatedAt     time.Time

	// Presentation fields resolved from the live product on read.
	ProductTitle    string
	ProductImageURL string
}

// ProductIDs returns the ids of every product referenced by the order.
func (o *Order) ProductIDs() []int64 {
	ids := make([]int64, len(o.Items))
	for i, it := range o.Items {
		ids[i] = it.ProductID
	}
	return ids
}

// ProductTotal is the sum of the item price snapshots. Derived, never stored.
func (o *Order) ProductTotal() int {
	total := 0
	for _, it := range o.Items {
		total += it.PriceSnapshot
	}
	return total
}

// TotalAmount is ProductTotal plus the shipping fee (0 while unset).
func (o *Order) TotalAmount() int {
	total := o.ProductTotal()
	if o.ShippingFee != nil {
		total += *o.ShippingFee
	}
	return total
}

// IsTerminal reports whether no further transition is possible.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}
