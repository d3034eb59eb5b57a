package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyhub/marketplace-api/internal/identity/domain"
	pgdb "github.com/studyhub/marketplace-api/internal/pkg/postgres"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, full_name, email, COALESCE(avatar_url, ''), COALESCE(phone, ''), created_at`

func (r *UserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	db := pgdb.QuerierFrom(ctx, r.pool)

	var u domain.User
	err := db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.FullName, &u.Email, &u.AvatarURL, &u.Phone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("postgres: get user %d: %w", id, err)
	}
	return u, nil
}

func (r *UserRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.User, error) {
	db := pgdb.QuerierFrom(ctx, r.pool)

	rows, err := db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get users: %w", err)
	}
	defer rows.Close()

	users := make(map[int64]domain.User, len(ids))
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &u.AvatarURL, &u.Phone, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan user row: %w", err)
		}
		users[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate users: %w", err)
	}
	return users, nil
}
