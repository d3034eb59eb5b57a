package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyhub/marketplace-api/internal/notification"
	pgdb "github.com/studyhub/marketplace-api/internal/pkg/postgres"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Insert(ctx context.Context, n *notification.Notification) error {
	db := pgdb.QuerierFrom(ctx, r.pool)

	const q = `
		INSERT INTO notifications
			(recipient_id, sender_id, type, title, content, order_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := db.QueryRow(ctx, q,
		n.RecipientID, n.SenderID, string(n.Type), n.Title, n.Content, n.OrderID, n.IsRead, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("postgres: insert notification for order %d: %w", n.OrderID, err)
	}
	return nil
}
