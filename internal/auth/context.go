package auth

import "context"

type contextKey string

const contextKeyUser contextKey = "auth.user"

// WithUser stores the current user's email in ctx.
func WithUser(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, contextKeyUser, email)
}

// UserFromContext returns the current user's email, or "".
func UserFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if email, ok := ctx.Value(contextKeyUser).(string); ok {
		return email
	}
	return ""
}
