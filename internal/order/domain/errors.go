package domain

import (
	"errors"
	"fmt"
)

// Sentinel domain errors. Every one of them is detected before any mutation
// and aborts the surrounding transaction.
var (
	// ErrOrderNotFound means the referenced order id does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrProductNotAvailable means a referenced product was not AVAILABLE
	// at reservation time.
	ErrProductNotAvailable = errors.New("product not available")

	// ErrMultipleSellers means the requested items span more than one seller.
	ErrMultipleSellers = errors.New("products belong to multiple sellers")

	// ErrBuyerSellerSame means the buyer attempted to order their own product.
	ErrBuyerSellerSame = errors.New("buyer and seller are the same user")

	// ErrEmptyItems means the creation request carried no items.
	ErrEmptyItems = errors.New("order items are empty")

	// ErrOrderCodeTaken signals an order code collision on insert; creation
	// retries generation against a small budget before giving up.
	ErrOrderCodeTaken = errors.New("order code already exists")
)

// NotAuthorizedError is returned when the actor is not the buyer/seller
// required by the attempted transition.
type NotAuthorizedError struct {
	Event    Event
	Required Role
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("only the %s may %s the order", e.Required, e.Event)
}

// InvalidTransitionError is returned when the current status does not permit
// the requested transition.
type InvalidTransitionError struct {
	Current Status
	Event   Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an order in status %s", e.Event, e.Current)
}

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
