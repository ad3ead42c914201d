package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dupipcom/morpheus-sub002/internal/auth"
	"github.com/dupipcom/morpheus-sub002/internal/model"
)

// UserHeader carries the caller id set by the upstream gateway.
const UserHeader = "X-User-ID"

// UserLookup resolves a user id to a stored user, nil when unknown.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
}

// Identity trusts the upstream identity header, checks that the user exists
// and populates AuthContext. Requests without a known user get 401.
func Identity(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(UserHeader))
			if id == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			u, err := users.GetUser(r.Context(), id)
			if err != nil {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if u == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: u.ID, Name: u.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
