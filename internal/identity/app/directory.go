// Package app resolves the authenticated principal and serves user
// summaries to the order core.
package app

import (
	"context"
	"errors"

	"github.com/studyhub/marketplace-api/internal/identity/domain"
)

// ErrNoPrincipal means the context carries no authenticated user. The auth
// middleware rejects unauthenticated requests before a handler runs, so
// seeing this from a handler indicates a routing mistake.
var ErrNoPrincipal = errors.New("no authenticated user in context")

// UserReader is the persistence port for user lookups.
type UserReader interface {
	GetByID(ctx context.Context, id int64) (domain.User, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.User, error)
}

// Directory implements the order core's Identity port.
type Directory struct {
	users UserReader
}

func NewDirectory(users UserReader) *Directory {
	return &Directory{users: users}
}

// CurrentUser returns the principal stashed in the context by the bearer
// token middleware.
func (d *Directory) CurrentUser(ctx context.Context) (domain.User, error) {
	u, ok := domain.CurrentUser(ctx)
	if !ok {
		return domain.User{}, ErrNoPrincipal
	}
	return u, nil
}

func (d *Directory) GetByID(ctx context.Context, id int64) (domain.User, error) {
	return d.users.GetByID(ctx, id)
}

func (d *Directory) GetByIDs(ctx context.Context, ids []int64) (map[int64]domain.User, error) {
	return d.users.GetByIDs(ctx, ids)
}
