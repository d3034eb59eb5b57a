// Package domain holds the minimal user model the order core needs: enough
// to resolve the authenticated principal and render party summaries on an
// order. Registration, verification and profile management are outside this
// service.
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound means the referenced user id does not exist.
var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID        int64
	FullName  string
	Email     string
	AvatarURL string
	Phone     string
	CreatedAt time.Time
}

type principalKey struct{}

// WithPrincipal stashes the authenticated user in the context. Set by the
// bearer-token middleware, read by CurrentUser.
func WithPrincipal(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

// CurrentUser resolves the authenticated principal from the context.
func CurrentUser(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(principalKey{}).(User)
	return u, ok
}
