// Package auth carries the caller identity through request contexts.
package auth

import "context"

type contextKey struct{}

// AuthContext is the identity an upstream gateway vouched for.
type AuthContext struct {
	UserID string
	Name   string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the caller's id, or "" for anonymous contexts.
func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}
