// Package httpx exposes the order lifecycle over REST. Handlers translate
// between JSON and the application layer; every domain error surfaces as a
// stable machine-readable code, and unexpected failures are logged but never
// leak detail to the caller.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	catalogdomain "github.com/studyhub/marketplace-api/internal/catalog/domain"
	identityapp "github.com/studyhub/marketplace-api/internal/identity/app"
	"github.com/studyhub/marketplace-api/internal/order/app"
	"github.com/studyhub/marketplace-api/internal/order/domain"
)

// OrderService is the application surface the handlers depend on.
type OrderService interface {
	Create(ctx context.Context, in app.CreateOrderInput) (*app.OrderDetail, error)
	Confirm(ctx context.Context, orderID int64) (*app.OrderDetail, error)
	UpdateShippingFee(ctx context.Context, orderID int64, fee int) (*app.OrderDetail, error)
	MarkShipping(ctx context.Context, orderID int64) (*app.OrderDetail, error)
	MarkDelivered(ctx context.Context, orderID int64) (*app.OrderDetail, error)
	Complete(ctx context.Context, orderID int64) (*app.OrderDetail, error)
	Cancel(ctx context.Context, orderID int64, reason string) (*app.OrderDetail, error)
	ListBought(ctx context.Context, status domain.Status) ([]app.OrderDetail, error)
	ListSold(ctx context.Context, status domain.Status) ([]app.OrderDetail, error)
	CountsForBuyer(ctx context.Context) (map[domain.Status]int64, error)
	CountsForSeller(ctx context.Context) (map[domain.Status]int64, error)
}

type Handler struct {
	orders OrderService
}

func NewHandler(orders OrderService) *Handler {
	return &Handler{orders: orders}
}

// CreateOrder places a new order for the authenticated buyer.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	in, err := req.toInput()
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	detail, err := h.orders.Create(r.Context(), in)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapOrderToResponse(detail))
}

func (req CreateOrderRequest) toInput() (app.CreateOrderInput, error) {
	if len(req.OrderItems) == 0 {
		return app.CreateOrderInput{}, domain.ErrEmptyItems
	}

	method, ok := domain.ParseDeliveryMethod(req.DeliveryMethod)
	if !ok {
		return app.CreateOrderInput{}, &domain.ValidationError{Field: "deliveryMethod", Message: "must be SHIPPER, HAND_DELIVERY or BOTH"}
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return app.CreateOrderInput{}, &domain.ValidationError{Field: "deliveryAddress", Message: "is required"}
	}
	if strings.TrimSpace(req.DeliveryPhone) == "" {
		return app.CreateOrderInput{}, &domain.ValidationError{Field: "deliveryPhone", Message: "is required"}
	}

	ids := make([]int64, len(req.OrderItems))
	for i, it := range req.OrderItems {
		if it.ProductID <= 0 {
			return app.CreateOrderInput{}, &domain.ValidationError{Field: "orderItems", Message: "productId is required"}
		}
		ids[i] = it.ProductID
	}

	return app.CreateOrderInput{
		ProductIDs:      ids,
		DeliveryMethod:  method,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryPhone:   req.DeliveryPhone,
		DeliveryNotes:   req.DeliveryNotes,
	}, nil
}

// ConfirmOrder is the seller accepting the order.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Confirm)
}

// UpdateShippingFee sets the fee on a confirmed order.
func (h *Handler) UpdateShippingFee(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateShippingFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ShippingFee == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "shippingFee is required")
		return
	}

	detail, err := h.orders.UpdateShippingFee(r.Context(), orderID, *req.ShippingFee)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(detail))
}

// MarkAsShipping is the seller handing the order to delivery.
func (h *Handler) MarkAsShipping(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkShipping)
}

// MarkAsDelivered is the seller reporting the goods arrived.
func (h *Handler) MarkAsDelivered(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.MarkDelivered)
}

// CompleteOrder is the buyer acknowledging receipt.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Complete)
}

// CancelOrder cancels a pending or confirmed order with a reason.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	detail, err := h.orders.Cancel(r.Context(), orderID, req.Reason)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(detail))
}

// transition runs a body-less lifecycle endpoint.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (*app.OrderDetail, error)) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	detail, err := fn(r.Context(), orderID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(detail))
}

// ListBought lists the caller's orders as buyer, filtered by status.
func (h *Handler) ListBought(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.orders.ListBought)
}

// ListSold lists the caller's orders as seller, filtered by status.
func (h *Handler) ListSold(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.orders.ListSold)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Status) ([]app.OrderDetail, error)) {
	status, ok := domain.ParseStatus(r.URL.Query().Get("status"))
	if !ok {
		writeError(w, http.StatusBadRequest, "validation_error", "status must be a valid order status")
		return
	}

	details, err := fn(r.Context(), status)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	out := make([]OrderResponse, len(details))
	for i := range details {
		out[i] = mapOrderToResponse(&details[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// CountBought returns the per-status summary for the caller as buyer.
func (h *Handler) CountBought(w http.ResponseWriter, r *http.Request) {
	counts, err := h.orders.CountsForBuyer(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCounts(counts))
}

// CountSold returns the per-status summary for the caller as seller.
func (h *Handler) CountSold(w http.ResponseWriter, r *http.Request) {
	counts, err := h.orders.CountsForSeller(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCounts(counts))
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "order id must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeDomainError maps domain failures to their stable codes. Anything not
// in the taxonomy is an internal error: logged with detail, reported without.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	var notAuthorized *domain.NotAuthorizedError
	var invalid *domain.InvalidTransitionError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_error", validation.Error())
	case errors.Is(err, domain.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, "order_items_empty", "order must contain at least one item")
	case errors.Is(err, catalogdomain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", "a referenced product does not exist")
	case errors.Is(err, domain.ErrProductNotAvailable):
		writeError(w, http.StatusConflict, "product_not_available", "a referenced product is not available")
	case errors.Is(err, domain.ErrMultipleSellers):
		writeError(w, http.StatusBadRequest, "products_multiple_sellers", "all products must belong to the same seller")
	case errors.Is(err, domain.ErrBuyerSellerSame):
		writeError(w, http.StatusBadRequest, "buyer_seller_same", "you cannot order your own product")
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", "order does not exist")
	case errors.As(err, &notAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized_for_action", notAuthorized.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusConflict, "invalid_status_transition", invalid.Error())
	case errors.Is(err, identityapp.ErrNoPrincipal):
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
	default:
		slog.ErrorContext(ctx, "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
