package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"aspire/internal/auth"
	"aspire/internal/services"
	"aspire/internal/store"
)

type contextKey string

const (
	claimsKey    contextKey = "claims"
	accountIDKey contextKey = "account_id"
)

func ClaimsFromContext(ctx context.Context) (auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(auth.Claims)
	return claims, ok
}

func AccountIDFromContext(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(accountIDKey).(string)
	return accountID, ok && accountID != ""
}

func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

func WithClaims(ctx context.Context, claims auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// Auth verifies the bearer token issued by the identity provider.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

type AccountResolver interface {
	EnsureAccount(ctx context.Context, identity services.Identity) (store.Account, error)
}

// ResolveAccount maps the verified identity to its token account, creating the account
// on the first request.
func ResolveAccount(resolver AccountResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			account, err := resolver.EnsureAccount(r.Context(), services.Identity{
				ExternalUserID: claims.UserID(),
				Email:          claims.Email,
				Name:           claims.Name,
			})
			if errors.Is(err, services.ErrUnauthenticated) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err != nil {
				logger.Error("resolve account", "external_user_id", claims.UserID(), "error", err)
				http.Error(w, "unable to load account", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), account.ID)))
		})
	}
}
