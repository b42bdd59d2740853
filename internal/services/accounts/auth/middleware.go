package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/streampulse/accounts/internal/auth"
	"github.com/streampulse/accounts/internal/domain/account"
)

type ctxKey int

const identityKey ctxKey = 1

// IdentityFromCtx returns the sanitized account attached by the auth gate.
func IdentityFromCtx(ctx context.Context) (*account.View, bool) {
	v, ok := ctx.Value(identityKey).(*account.View)
	return v, ok
}

// Gate is the authentication middleware. It extracts a bearer credential
// (cookie first, then Authorization header), verifies it against the access
// secret, resolves the account and attaches the sanitized view to the request
// context. Every failure collapses to the same 401 so callers cannot tell
// expired from forged from missing.
func Gate(tokens *auth.TokenManager, accounts account.Repo, accessCookie string, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessTokenFromRequest(r, accessCookie)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized request")
				return
			}

			claims, err := tokens.VerifyAccess(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized request")
				return
			}

			acc, err := accounts.FindByID(r.Context(), claims.Subject)
			if err != nil {
				if !errors.Is(err, account.ErrNotFound) {
					log.Error("auth gate account lookup", zap.Error(err))
				}
				writeError(w, http.StatusUnauthorized, "Unauthorized request")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, acc.Sanitized())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessTokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	v := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(v), "bearer ") {
		return strings.TrimSpace(v[len("bearer "):])
	}
	return ""
}
