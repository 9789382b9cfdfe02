package auth

import "context"

type ctxKey int

const authKey ctxKey = iota

// AuthContext is the caller behind a request. Middleware rebuilds it from the
// users table on every request, so a deleted user or a revoked admin flag
// takes effect immediately.
type AuthContext struct {
	UserID  int64
	Email   string
	IsAdmin bool
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authKey, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(authKey).(AuthContext)
	return ac, ok
}

// UserID returns the caller's ID, or 0 for an anonymous request.
func UserID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.UserID
}

func IsAdmin(ctx context.Context) bool {
	ac, _ := FromContext(ctx)
	return ac.IsAdmin
}
