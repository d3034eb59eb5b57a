// Package postgres persists the Order aggregate. Item rows are written once
// at creation and never mutated; lifecycle updates touch only the order row.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyhub/marketplace-api/internal/order/domain"
	pgdb "github.com/studyhub/marketplace-api/internal/pkg/postgres"
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

func (r *OrderRepo) Insert(ctx context.Context, o *domain.Order) error {
	db := pgdb.QuerierFrom(ctx, r.pool)

	const q = `
		INSERT INTO orders
			(order_code, buyer_id, seller_id, status, delivery_method,
			 delivery_address, delivery_phone, delivery_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := db.QueryRow(ctx, q,
		o.OrderCode, o.BuyerID, o.SellerID, string(o.Status), string(o.DeliveryMethod),
		o.DeliveryAddress, o.DeliveryPhone, nullableText(o.DeliveryNotes), o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "orders_order_code_key" {
			return domain.ErrOrderCodeTaken
		}
		return fmt.Errorf("postgres: insert order %q: %w", o.OrderCode, err)
	}

	const itemQ = `
		INSERT INTO order_items (order_id, product_id, price_snapshot, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		it.CreatedAt = o.CreatedAt
		if err := db.QueryRow(ctx, itemQ, o.ID, it.ProductID, it.PriceSnapshot, it.CreatedAt).Scan(&it.ID); err != nil {
			return fmt.Errorf("postgres: insert order item for order %d: %w", o.ID, err)
		}
	}
	return nil
}

func (r *OrderRepo) Update(ctx context.Context, o *domain.Order) error {
	db := pgdb.QuerierFrom(ctx, r.pool)

	const q = `
		UPDATE orders
		SET status = $2,
		    shipping_fee = $3,
		    confirmed_at = $4,
		    shipping_fee_updated_at = $5,
		    delivered_at = $6,
		    completed_at = $7,
		    cancelled_at = $8,
		    cancellation_reason = $9,
		    cancelled_by = $10,
		    updated_at = $11
		WHERE id = $1`

	tag, err := db.Exec(ctx, q,
		o.ID, string(o.Status), o.ShippingFee,
		o.ConfirmedAt, o.ShippingFeeUpdatedAt, o.DeliveredAt, o.CompletedAt,
		o.CancelledAt, nullableText(o.CancellationReason), o.CancelledByID, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

const orderColumns = `
	id, order_code, buyer_id, seller_id, status, delivery_method,
	delivery_address, delivery_phone, COALESCE(delivery_notes, ''),
	shipping_fee, confirmed_at, shipping_fee_updated_at, delivered_at,
	completed_at, cancelled_at, COALESCE(cancellation_reason, ''),
	cancelled_by, created_at, updated_at`

func (r *OrderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	db := pgdb.QuerierFrom(ctx, r.pool)

	row := db.QueryRow(ctx, `SELECT`+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get order %d: %w", id, err)
	}

	items, err := r.loadItems(ctx, db, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *OrderRepo) ListByBuyer(ctx context.Context, buyerID int64, status domain.Status) ([]domain.Order, error) {
	return r.list(ctx, `buyer_id`, buyerID, status)
}

func (r *OrderRepo) ListBySeller(ctx context.Context, sellerID int64, status domain.Status) ([]domain.Order, error) {
	return r.list(ctx, `seller_id`, sellerID, status)
}

func (r *OrderRepo) list(ctx context.Context, party string, userID int64, status domain.Status) ([]domain.Order, error) {
	db := pgdb.QuerierFrom(ctx, r.pool)

	// party is one of the two fixed column names above, never user input.
	q := `SELECT` + orderColumns + ` FROM orders WHERE ` + party + ` = $1 AND status = $2 ORDER BY created_at DESC, id DESC`

	rows, err := db.Query(ctx, q, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by %s: %w", party, err)
	}
	defer rows.Close()

	var orders []domain.Order
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order row: %w", err)
		}
		orders = append(orders, *o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate orders: %w", err)
	}

	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	items, err := r.loadItems(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *OrderRepo) CountByBuyer(ctx context.Context, buyerID int64) (map[domain.Status]int64, error) {
	return r.count(ctx, `buyer_id`, buyerID)
}

func (r *OrderRepo) CountBySeller(ctx context.Context, sellerID int64) (map[domain.Status]int64, error) {
	return r.count(ctx, `seller_id`, sellerID)
}

func (r *OrderRepo) count(ctx context.Context, party string, userID int64) (map[domain.Status]int64, error) {
	db := pgdb.QuerierFrom(ctx, r.pool)

	q := `SELECT status, COUNT(*) FROM orders WHERE ` + party + ` = $1 GROUP BY status`

	rows, err := db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: count orders by %s: %w", party, err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan count row: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate counts: %w", err)
	}
	return counts, nil
}

// loadItems fetches the items of every order in ids, joining products so the
// presentation fields reflect the live catalog while the price stays the
// creation-time snapshot.
func (r *OrderRepo) loadItems(ctx context.Context, db pgdb.Querier, ids []int64) (map[int64][]domain.OrderItem, error) {
	const q = `
		SELECT oi.id, oi.order_id, oi.product_id, oi.price_snapshot, oi.created_at,
		       p.title, COALESCE(p.primary_image_url, '')
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id`

	rows, err := db.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: load order items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]domain.OrderItem, len(ids))
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.PriceSnapshot, &it.CreatedAt,
			&it.ProductTitle, &it.ProductImageURL); err != nil {
			return nil, fmt.Errorf("postgres: scan order item: %w", err)
		}
		items[it.OrderID] = append(items[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate order items: %w", err)
	}
	return items, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var status, method string
	err := row.Scan(
		&o.ID, &o.OrderCode, &o.BuyerID, &o.SellerID, &status, &method,
		&o.DeliveryAddress, &o.DeliveryPhone, &o.DeliveryNotes,
		&o.ShippingFee, &o.ConfirmedAt, &o.ShippingFeeUpdatedAt, &o.DeliveredAt,
		&o.CompletedAt, &o.CancelledAt, &o.CancellationReason,
		&o.CancelledByID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)
	o.DeliveryMethod = domain.DeliveryMethod(method)
	return &o, nil
}

// nullableText stores NULL instead of an empty TEXT.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
