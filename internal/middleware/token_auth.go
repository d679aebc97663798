package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/brightkids/backend/internal/auth"
)

type contextKey string

const ctxIdentityKey contextKey = "identity"

// WalletInitializer lazily creates the caller's wallet with the starting
// grant. Idempotent under race.
type WalletInitializer interface {
	Ensure(ctx context.Context, userID uuid.UUID) error
}

// TokenAuth authenticates requests by verifying the Bearer token with the
// identity verifier. On success it lazily initializes the caller's wallet
// and stores the identity in request context.
func TokenAuth(verifier auth.Verifier, wallets WalletInitializer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}

			ident, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			if err := wallets.Ensure(r.Context(), ident.UserID); err != nil {
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ctxIdentityKey, &ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromCtx returns the authenticated identity or nil.
func IdentityFromCtx(ctx context.Context) *auth.Identity {
	ident, _ := ctx.Value(ctxIdentityKey).(*auth.Identity)
	return ident
}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, ident *auth.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey, ident)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
