// Package postgres implements the catalog reads and the product
// availability gate used by the order lifecycle.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyhub/marketplace-api/internal/catalog/domain"
	orderdomain "github.com/studyhub/marketplace-api/internal/order/domain"
	pgdb "github.com/studyhub/marketplace-api/internal/pkg/postgres"
)

type ProductRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func (r *ProductRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	db := pgdb.QuerierFrom(ctx, r.pool)

	const q = `
		SELECT id, seller_id, title, COALESCE(description, ''), price,
		       COALESCE(primary_image_url, ''), status, created_at, updated_at
		FROM products
		WHERE id = $1`

	var p domain.Product
	var status string
	err := db.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.SellerID, &p.Title, &p.Description, &p.Price,
		&p.PrimaryImageURL, &status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get product %d: %w", id, err)
	}
	p.Status = domain.ProductStatus(status)
	return &p, nil
}

// Reserve flips the whole batch AVAILABLE -> PENDING with one conditional
// update. The status predicate closes the race between two concurrent
// creations reading the same product as AVAILABLE: whoever commits first
// wins, the other sees fewer rows affected and aborts. The caller runs this
// inside the order creation transaction, so a partial match is rolled back
// and nothing is mutated.
func (r *ProductRepo) Reserve(ctx context.Context, ids []int64) error {
	db := pgdb.QuerierFrom(ctx, r.pool)

	const q = `
		UPDATE products
		SET status = $2, updated_at = $3
		WHERE id = ANY($1) AND status = $4`

	tag, err := db.Exec(ctx, q, ids, string(domain.ProductPending), time.Now().UTC(), string(domain.ProductAvailable))
	if err != nil {
		return fmt.Errorf("postgres: reserve products: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return orderdomain.ErrProductNotAvailable
	}
	return nil
}

// Release puts the batch back to AVAILABLE. Cancellation is the only caller
// and is gated by the order state machine, so the update is unconditional.
func (r *ProductRepo) Release(ctx context.Context, ids []int64) error {
	return r.setStatus(ctx, ids, domain.ProductAvailable)
}

// Finalize marks the batch SOLD on order completion.
func (r *ProductRepo) Finalize(ctx context.Context, ids []int64) error {
	return r.setStatus(ctx, ids, domain.ProductSold)
}

func (r *ProductRepo) setStatus(ctx context.Context, ids []int64, status domain.ProductStatus) error {
	db := pgdb.QuerierFrom(ctx, r.pool)

	const q = `UPDATE products SET status = $2, updated_at = $3 WHERE id = ANY($1)`

	if _, err := db.Exec(ctx, q, ids, string(status), time.Now().UTC()); err != nil {
		return fmt.Errorf("postgres: set products %v to %s: %w", ids, status, err)
	}
	return nil
}
