// Package middlewares holds the HTTP middleware for the REST edge.
package middlewares

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/studyhub/marketplace-api/internal/identity/domain"
)

// UserLoader resolves the token subject to a full user.
type UserLoader interface {
	GetByID(ctx context.Context, id int64) (domain.User, error)
}

// Authenticate verifies the bearer token, loads the user it names and
// stashes the principal in the request context. Token issuance lives in the
// identity provider; this edge only checks the HMAC signature and subject.
func Authenticate(secret []byte, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := subjectFromHeader(r.Header.Get("Authorization"), secret)
			if !ok {
				unauthorized(w)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), user)))
		})
	}
}

func subjectFromHeader(header string, secret []byte) (int64, bool) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return 0, false
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || !token.Valid {
		return 0, false
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
