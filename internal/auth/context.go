package auth

import "context"

type accountContextKey struct{}

// ContextWithAccount attaches the authenticated calling account.
func ContextWithAccount(ctx context.Context, accountID string) context.Context {
	if accountID == "" {
		return ctx
	}
	return context.WithValue(ctx, accountContextKey{}, accountID)
}

// AccountFromContext extracts the authenticated calling account.
func AccountFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(accountContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
