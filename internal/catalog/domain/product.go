// Package domain holds the catalog-side Product model. The wider catalog
// (creation, editing, search) lives elsewhere; the order core only reads
// products and drives their availability status.
package domain

import (
	"errors"
	"time"
)

// ErrProductNotFound means the referenced product id does not exist.
var ErrProductNotFound = errors.New("product not found")

// ProductStatus is the availability flag owned by the availability gate.
type ProductStatus string

const (
	ProductAvailable ProductStatus = "AVAILABLE"
	ProductPending   ProductStatus = "PENDING"
	ProductSold      ProductStatus = "SOLD"
	ProductInactive  ProductStatus = "INACTIVE"
)

type Product struct {
	ID              int64
	SellerID        int64
	Title           string
	Description     string
	Price           int // minor currency units
	PrimaryImageURL string
	Status          ProductStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsAvailable reports whether the product can be reserved by a new order.
func (p *Product) IsAvailable() bool {
	return p.Status == ProductAvailable
}
