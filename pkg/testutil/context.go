package testutil

import (
	"context"
	"net/http"

	"indexcover/internal/platform/middleware"
	"indexcover/pkg/domain"
)

// WithAccount adds an authenticated account to the request context,
// simulating what the auth middleware does for a valid bearer token.
// An empty account is silently ignored.
func WithAccount(req *http.Request, account string) *http.Request {
	parsed, err := domain.ParseAccountID(account)
	if err != nil {
		return req
	}
	ctx := context.WithValue(req.Context(), middleware.ContextKeyAccountID, parsed)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
