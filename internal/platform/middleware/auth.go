package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"indexcover/pkg/domain"
)

// TokenValidator validates a bearer token and returns the caller's claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims carries the authenticated caller identity. The subject is the
// collateral-token account acting as provider, buyer, or redeemer.
type Claims struct {
	Account domain.AccountID
}

type contextKeyAccountID struct{}

// ContextKeyAccountID is exported for request construction in tests.
var ContextKeyAccountID = contextKeyAccountID{}

// GetAccountID retrieves the authenticated account from the context.
func GetAccountID(ctx context.Context) domain.AccountID {
	account, ok := ctx.Value(ContextKeyAccountID).(domain.AccountID)
	if !ok {
		return ""
	}
	return account
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's account id in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyAccountID, claims.Account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAPIKey guards the oracle update endpoint. The expected key is stored
// as a bcrypt hash so a leaked config snapshot does not leak the key itself.
// An empty hash disables the check for local development.
func RequireAPIKey(hashedKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hashedKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" || bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key)) != nil {
				logger.WarnContext(r.Context(), "unauthorized oracle submission",
					"request_id", GetRequestID(r.Context()),
					"key_present", key != "",
				)
				writeUnauthorized(w, "Missing or invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
