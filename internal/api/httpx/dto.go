package httpx

import (
	"time"

	identity "github.com/studyhub/marketplace-api/internal/identity/domain"
	"github.com/studyhub/marketplace-api/internal/order/app"
	"github.com/studyhub/marketplace-api/internal/order/domain"
)

type CreateOrderRequest struct {
	OrderItems      []OrderItemRequest `json:"orderItems"`
	DeliveryMethod  string             `json:"deliveryMethod"`
	DeliveryAddress string             `json:"deliveryAddress"`
	DeliveryPhone   string             `json:"deliveryPhone"`
	DeliveryNotes   string             `json:"deliveryNotes,omitempty"`
}

type OrderItemRequest struct {
	ProductID int64 `json:"productId"`
}

type UpdateShippingFeeRequest struct {
	ShippingFee *int `json:"shippingFee"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type UserSummary struct {
	ID        int64  `json:"id"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type OrderItemResponse struct {
	ID              int64     `json:"id"`
	ProductID       int64     `json:"productId"`
	ProductTitle    string    `json:"productTitle"`
	ProductImageURL string    `json:"productImageUrl,omitempty"`
	ItemPrice       int       `json:"itemPrice"`
	CreatedAt       time.Time `json:"createdAt"`
}

type OrderResponse struct {
	ID             int64  `json:"id"`
	OrderCode      string `json:"orderCode"`
	Status         string `json:"status"`
	DeliveryMethod string `json:"deliveryMethod"`

	Buyer  UserSummary `json:"buyer"`
	Seller UserSummary `json:"seller"`

	DeliveryAddress string `json:"deliveryAddress"`
	DeliveryPhone   string `json:"deliveryPhone"`
	DeliveryNotes   string `json:"deliveryNotes,omitempty"`

	ShippingFee  *int `json:"shippingFee"`
	ProductTotal int  `json:"productTotal"`
	TotalAmount  int  `json:"totalAmount"`

	OrderItems []OrderItemResponse `json:"orderItems"`

	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	ConfirmedAt          *time.Time `json:"confirmedAt,omitempty"`
	ShippingFeeUpdatedAt *time.Time `json:"shippingFeeUpdatedAt,omitempty"`
	DeliveredAt          *time.Time `json:"deliveredAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	CancelledAt          *time.Time `json:"cancelledAt,omitempty"`

	CancellationReason string       `json:"cancellationReason,omitempty"`
	CancelledBy        *UserSummary `json:"cancelledBy,omitempty"`
}

type OrderCountResponse struct {
	Pending            int64 `json:"pending"`
	Confirmed          int64 `json:"confirmed"`
	ShippingFeeUpdated int64 `json:"shippingFeeUpdated"`
	Shipping           int64 `json:"shipping"`
	Delivered          int64 `json:"delivered"`
	Completed          int64 `json:"completed"`
	Cancelled          int64 `json:"cancelled"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapUserSummary(u identity.User) UserSummary {
	return UserSummary{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Phone:     u.Phone,
	}
}

func mapOrderToResponse(d *app.OrderDetail) OrderResponse {
	o := d.Order

	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ID:              it.ID,
			ProductID:       it.ProductID,
			ProductTitle:    it.ProductTitle,
			ProductImageURL: it.ProductImageURL,
			ItemPrice:       it.PriceSnapshot,
			CreatedAt:       it.CreatedAt,
		}
	}

	resp := OrderResponse{
		ID:                   o.ID,
		OrderCode:            o.OrderCode,
		Status:               string(o.Status),
		DeliveryMethod:       string(o.DeliveryMethod),
		Buyer:                mapUserSummary(d.Buyer),
		Seller:               mapUserSummary(d.Seller),
		DeliveryAddress:      o.DeliveryAddress,
		DeliveryPhone:        o.DeliveryPhone,
		DeliveryNotes:        o.DeliveryNotes,
		ShippingFee:          o.ShippingFee,
		ProductTotal:         o.ProductTotal(),
		TotalAmount:          o.TotalAmount(),
		OrderItems:           items,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
		ConfirmedAt:          o.ConfirmedAt,
		ShippingFeeUpdatedAt: o.ShippingFeeUpdatedAt,
		DeliveredAt:          o.DeliveredAt,
		CompletedAt:          o.CompletedAt,
		CancelledAt:          o.CancelledAt,
		CancellationReason:   o.CancellationReason,
	}
	if d.CancelledBy != nil {
		u := mapUserSummary(*d.CancelledBy)
		resp.CancelledBy = &u
	}
	return resp
}

func mapCounts(counts map[domain.Status]int64) OrderCountResponse {
	return OrderCountResponse{
		Pending:            counts[domain.StatusPending],
		Confirmed:          counts[domain.StatusConfirmed],
		ShippingFeeUpdated: counts[domain.StatusShippingFeeUpdated],
		Shipping:           counts[domain.StatusShipping],
		Delivered:          counts[domain.StatusDelivered],
		Completed:          counts[domain.StatusCompleted],
		Cancelled:          counts[domain.StatusCancelled],
	}
}
